package traffic

import (
	"context"
	"strings"
)

// callResultSeparator splits an embedded call from the live result the caller
// obtained for it while recording.
const callResultSeparator = ":SUT_RESULT:"

// CallPayload builds the payload of an embedded call, with an optional result.
func CallPayload(call string, result *string) string {
	if result == nil {
		return call
	}
	return call + callResultSeparator + *result
}

func callBehavior() Behavior {
	return Behavior{
		Kind:       KindCall,
		WirePrefix: "SUT_CALL",
		RecordTag:  "PYT",
		RecordText: func(u Unit) string {
			call, _, _ := strings.Cut(u.Payload, callResultSeparator)
			return call
		},
		Group: func(u Unit) string {
			call, _, _ := strings.Cut(u.Payload, callResultSeparator)
			target, _, _ := strings.Cut(call, "(")
			return strings.TrimSpace(target)
		},
		// The call itself has already run inside the caller; forwarding only
		// captures the result it reported.
		Forward: func(ctx context.Context, u Unit) ([]Unit, error) {
			_, result, ok := strings.Cut(u.Payload, callResultSeparator)
			if !ok {
				return nil, nil
			}
			return []Unit{{Kind: KindCallResult, Payload: result, IsResponse: true}}, nil
		},
	}
}
