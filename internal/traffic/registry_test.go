package traffic

import (
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func newTestRegistry() *Registry {
	return NewDefaultRegistry(Options{
		Command: CommandOptions{Asynchronous: []string{"qsub"}, Enquiry: []string{"qstat"}},
	})
}

// Feature: replaymock, Property 1: Wire round trip of constructed units
func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	kinds := []Kind{
		KindCommand, KindCall, KindFileEdit, KindServerMessage, KindStdout,
		KindStderr, KindExitCode, KindCallResult, KindClientMessage,
	}
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.SampledFrom(kinds).Draw(t, "kind")
		payload := rapid.String().Draw(t, "payload")
		u := reg.NewUnit(k, payload)
		if reg.Validate(u) != nil {
			// Ambiguous client payloads are not structurally valid.
			return
		}

		got, err := reg.Decode(reg.Encode(u))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Kind != u.Kind || got.Payload != u.Payload || got.IsResponse != u.IsResponse || got.IsAsynchronous != u.IsAsynchronous {
			t.Fatalf("round trip mismatch: sent %+v, got %+v", u, got)
		}
	})
}

// Feature: replaymock, Property 2: Wire text survives decode then encode
func TestDecodeEncodeIdentity(t *testing.T) {
	reg := newTestRegistry()
	prefixes := []string{"SUT_COMMAND_LINE:", "SUT_CALL:", "SUT_STDOUT:", "SUT_EXIT:", "SUT_SERVER:", ""}
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.SampledFrom(prefixes).Draw(t, "prefix") + rapid.String().Draw(t, "payload")
		u, err := reg.Decode(text)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if got := reg.Encode(u); got != text {
			t.Fatalf("Encode(Decode(%q)) = %q", text, got)
		}
	})
}

func TestDecodeSelectsPrefixedKindsBeforeBareKind(t *testing.T) {
	reg := newTestRegistry()
	cases := map[string]Kind{
		"SUT_COMMAND_LINE:ls -l":  KindCommand,
		"SUT_CALL:os.getcwd()":    KindCall,
		"SUT_FILE_EDIT:out.txt":   KindFileEdit,
		"GET /status HTTP/1.0":    KindClientMessage,
		"SUT_COMMAND_LINEX:ls -l": KindClientMessage,
	}
	for text, want := range cases {
		u, err := reg.Decode(text)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if u.Kind != want {
			t.Errorf("Decode(%q).Kind = %s, want %s", text, u.Kind, want)
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(callBehavior()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := reg.Decode("something else")
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Text != "something else" {
		t.Fatalf("expected *ProtocolError carrying the text, got %#v", err)
	}
}

func TestRegisterRejectsClashes(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Behavior{Kind: KindStdout, WirePrefix: "A", RecordTag: "OUT"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tests := []struct {
		name string
		b    Behavior
	}{
		{"duplicate kind", Behavior{Kind: KindStdout, WirePrefix: "B", RecordTag: "XXX"}},
		{"duplicate tag", Behavior{Kind: KindStderr, WirePrefix: "B", RecordTag: "OUT"}},
		{"duplicate prefix", Behavior{Kind: KindStderr, WirePrefix: "A", RecordTag: "ERR"}},
		{"colon in prefix", Behavior{Kind: KindStderr, WirePrefix: "A:B", RecordTag: "ERR"}},
		{"missing tag", Behavior{Kind: KindStderr, WirePrefix: "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Register(tt.b); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestValidateRejectsAmbiguousClientPayload(t *testing.T) {
	reg := newTestRegistry()
	u := reg.NewUnit(KindClientMessage, "SUT_CALL:looks like a call")
	if err := reg.Validate(u); err == nil {
		t.Fatal("expected ambiguous client payload to be rejected")
	}
	if err := reg.Validate(reg.NewUnit(KindClientMessage, "hello")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestIdentityNormalizesCommandQuoting(t *testing.T) {
	reg := newTestRegistry()
	a := reg.NewUnit(KindCommand, `ls  -l   'my file'`+commandSeparator+"/tmp")
	b := reg.NewUnit(KindCommand, `ls -l "my file"`+commandSeparator+"/elsewhere")
	if reg.Identity(a) != reg.Identity(b) {
		t.Fatalf("identities differ: %q vs %q", reg.Identity(a), reg.Identity(b))
	}
	// Composed and decomposed forms of the same text match.
	c := reg.NewUnit(KindCall, "open(\"caf\u00e9\")")
	d := reg.NewUnit(KindCall, "open(\"cafe\u0301\")")
	if reg.Identity(c) != reg.Identity(d) {
		t.Fatalf("NFC normalization not applied: %q vs %q", reg.Identity(c), reg.Identity(d))
	}
}

func TestAsynchronousAndEnquiryFlags(t *testing.T) {
	reg := newTestRegistry()
	sub := reg.NewUnit(KindCommand, "qsub job.sh")
	if !sub.IsAsynchronous {
		t.Error("qsub should be flagged asynchronous")
	}
	stat := reg.NewUnit(KindCommand, "qstat -u me")
	if !reg.EnquiryOnly(stat, []Unit{{Kind: KindStdout, Payload: "running"}}) {
		t.Error("qstat with plain output should be enquiry-only")
	}
	if reg.EnquiryOnly(stat, []Unit{{Kind: KindFileEdit, Payload: "out"}}) {
		t.Error("qstat that edits files must be recorded")
	}
	if reg.EnquiryOnly(reg.NewUnit(KindCommand, "ls"), nil) {
		t.Error("ls is not configured as an enquiry")
	}
}

func TestCallForwardCapturesReportedResult(t *testing.T) {
	reg := newTestRegistry()
	result := "42"
	u := reg.NewUnit(KindCall, CallPayload("calc.answer()", &result))
	if got := reg.RecordText(u); got != "calc.answer()" {
		t.Errorf("RecordText = %q", got)
	}
	if got := reg.Group(u); got != "calc.answer" {
		t.Errorf("Group = %q", got)
	}
	responses, err := reg.Forward(t.Context(), u)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(responses) != 1 || responses[0].Kind != KindCallResult || responses[0].Payload != "42" {
		t.Fatalf("unexpected responses %+v", responses)
	}

	none, err := reg.Forward(t.Context(), reg.NewUnit(KindCall, "calc.answer()"))
	if err != nil || len(none) != 0 {
		t.Fatalf("call without result: %+v, %v", none, err)
	}
}

func TestKindNamesParse(t *testing.T) {
	for _, name := range KindNames() {
		k, err := ParseKind(strings.ToUpper(name))
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", name, err)
		}
		if k.String() != name {
			t.Errorf("ParseKind(%q) = %s", name, k)
		}
	}
	if _, err := ParseKind("telepathy"); err == nil {
		t.Error("expected an error for an unknown kind name")
	}
}
