package traffic

import (
	"context"
	"io"
)

// Options configures the built-in kinds.
type Options struct {
	Command      CommandOptions
	ClientServer ClientServerOptions
	// Edits saves and restores file edits. Nil disables both.
	Edits EditStore
}

// NewDefaultRegistry registers the built-in kinds. Client messages carry no
// prefix and are registered last.
func NewDefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	for _, b := range []Behavior{
		commandBehavior(opts.Command),
		callBehavior(),
		fileEditBehavior(opts.Edits),
		responseBehavior(KindServerMessage, "SUT_SERVER", "SRV"),
		responseBehavior(KindStdout, "SUT_STDOUT", "OUT"),
		responseBehavior(KindStderr, "SUT_STDERR", "ERR"),
		responseBehavior(KindExitCode, "SUT_EXIT", "EXC"),
		responseBehavior(KindCallResult, "SUT_RETURN", "RET"),
		clientBehavior(opts.ClientServer),
	} {
		if err := r.Register(b); err != nil {
			// Built-in kinds are fixed; a clash is a programming error.
			panic(err)
		}
	}
	return r
}

func responseBehavior(k Kind, prefix, tag string) Behavior {
	return Behavior{Kind: k, WirePrefix: prefix, RecordTag: tag, ResponseOnly: true}
}

// fileEditBehavior never writes to the caller: recorded edits are saved to the
// record edit directory, replayed edits are restored onto the live target.
func fileEditBehavior(store EditStore) Behavior {
	return Behavior{
		Kind:         KindFileEdit,
		WirePrefix:   "SUT_FILE_EDIT",
		RecordTag:    "FIL",
		ResponseOnly: true,
		Deliver: func(ctx context.Context, u Unit, w io.Writer) ([]Unit, error) {
			if store == nil || u.Edit == nil {
				return nil, nil
			}
			if u.Edit.Restore {
				return nil, store.Restore(u.Edit.Stored, u.Edit.Root)
			}
			return nil, store.Save(u.Payload, u.Edit.Root, u.Edit.Changed)
		},
	}
}
