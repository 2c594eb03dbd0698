package traffic

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Behavior is the dispatch table entry for one Kind. Nil functions fall back
// to the defaults documented on each field.
type Behavior struct {
	Kind Kind
	// WirePrefix is the text before ':' on the wire. At most one kind may use
	// the empty prefix, and it is always tried last.
	WirePrefix string
	// RecordTag is the three-letter tag used in record files.
	RecordTag    string
	ResponseOnly bool

	// RecordText returns the text written after the tag. Default: the payload.
	RecordText func(u Unit) string
	// Group names the family a unit belongs to, e.g. the command name.
	// Default: the kind name.
	Group func(u Unit) string
	// FileEdits lists paths the unit may edit as a side effect. Default: none.
	FileEdits func(u Unit) []string
	// EnquiryOnly reports whether the interaction must stay out of the trace.
	// Default: false.
	EnquiryOnly func(u Unit, responses []Unit) bool
	// Asynchronous reports whether side effects may still be pending after the
	// request completes. Default: false.
	Asynchronous func(u Unit) bool
	// Forward performs the real external call. Default: no responses.
	Forward func(ctx context.Context, u Unit) ([]Unit, error)
	// Failure converts a forwarding error into recordable responses.
	// Default: no responses.
	Failure func(u Unit, err error) []Unit
	// Deliver hands a response to the caller and returns chained units.
	// Default: write the encoded unit as one frame.
	Deliver func(ctx context.Context, u Unit, w io.Writer) ([]Unit, error)
}

// Registry is the closed set of kinds known to a server, in registration order.
type Registry struct {
	behaviors []*Behavior
	byKind    map[Kind]*Behavior
	byTag     map[string]*Behavior
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[Kind]*Behavior),
		byTag:  make(map[string]*Behavior),
	}
}

// Register adds a kind. Prefixes and tags must be unique, and only one kind
// may use the empty wire prefix.
func (r *Registry) Register(b Behavior) error {
	if _, ok := r.byKind[b.Kind]; ok {
		return fmt.Errorf("traffic kind %s already registered", b.Kind)
	}
	if b.RecordTag == "" {
		return fmt.Errorf("traffic kind %s has no record tag", b.Kind)
	}
	if _, ok := r.byTag[b.RecordTag]; ok {
		return fmt.Errorf("record tag %q already registered", b.RecordTag)
	}
	for _, other := range r.behaviors {
		if other.WirePrefix == b.WirePrefix {
			return fmt.Errorf("wire prefix %q of %s clashes with %s", b.WirePrefix, b.Kind, other.Kind)
		}
	}
	if strings.Contains(b.WirePrefix, ":") {
		return fmt.Errorf("wire prefix %q must not contain ':'", b.WirePrefix)
	}
	entry := b
	r.behaviors = append(r.behaviors, &entry)
	r.byKind[b.Kind] = &entry
	r.byTag[b.RecordTag] = &entry
	return nil
}

// Lookup returns the behavior registered for k.
func (r *Registry) Lookup(k Kind) (*Behavior, bool) {
	b, ok := r.byKind[k]
	return b, ok
}

// ByTag returns the behavior registered under a record tag.
func (r *Registry) ByTag(tag string) (*Behavior, bool) {
	b, ok := r.byTag[tag]
	return b, ok
}

// ResponseKinds returns the response-only kinds in registration order.
func (r *Registry) ResponseKinds() []Kind {
	var kinds []Kind
	for _, b := range r.behaviors {
		if b.ResponseOnly {
			kinds = append(kinds, b.Kind)
		}
	}
	return kinds
}

// decodeOrder returns behaviors with the empty-prefix kind moved last.
func (r *Registry) decodeOrder() []*Behavior {
	ordered := make([]*Behavior, 0, len(r.behaviors))
	var bare *Behavior
	for _, b := range r.behaviors {
		if b.WirePrefix == "" {
			bare = b
			continue
		}
		ordered = append(ordered, b)
	}
	if bare != nil {
		ordered = append(ordered, bare)
	}
	return ordered
}

// Decode selects the first kind whose prefix starts text.
func (r *Registry) Decode(text string) (Unit, error) {
	for _, b := range r.decodeOrder() {
		if b.WirePrefix == "" {
			return r.NewUnit(b.Kind, text), nil
		}
		prefix := b.WirePrefix + ":"
		if strings.HasPrefix(text, prefix) {
			return r.NewUnit(b.Kind, text[len(prefix):]), nil
		}
	}
	return Unit{}, &ProtocolError{Text: text}
}

// Encode is the inverse of Decode for structurally valid units.
func (r *Registry) Encode(u Unit) string {
	b, ok := r.byKind[u.Kind]
	if !ok || b.WirePrefix == "" {
		return u.Payload
	}
	return b.WirePrefix + ":" + u.Payload
}

// NewUnit builds a unit of kind k with the flags its behavior implies.
func (r *Registry) NewUnit(k Kind, payload string) Unit {
	u := Unit{Kind: k, Payload: payload}
	if b, ok := r.byKind[k]; ok {
		u.IsResponse = b.ResponseOnly
		if b.Asynchronous != nil {
			u.IsAsynchronous = b.Asynchronous(u)
		}
	}
	return u
}

// Validate reports whether u would survive an encode/decode round trip.
func (r *Registry) Validate(u Unit) error {
	b, ok := r.byKind[u.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, u.Kind)
	}
	if b.WirePrefix != "" {
		return nil
	}
	for _, other := range r.behaviors {
		if other.WirePrefix != "" && strings.HasPrefix(u.Payload, other.WirePrefix+":") {
			return fmt.Errorf("%s payload is ambiguous with %s prefix %q", u.Kind, other.Kind, other.WirePrefix)
		}
	}
	return nil
}

// Tag returns the record tag of k, or "" if unregistered.
func (r *Registry) Tag(k Kind) string {
	if b, ok := r.byKind[k]; ok {
		return b.RecordTag
	}
	return ""
}

// RecordText returns the text stored in a record file for u.
func (r *Registry) RecordText(u Unit) string {
	if b, ok := r.byKind[u.Kind]; ok && b.RecordText != nil {
		return b.RecordText(u)
	}
	return u.Payload
}

// Identity returns the normalized text two units must share to match.
func (r *Registry) Identity(u Unit) string {
	return NormalizeText(r.RecordText(u))
}

// NormalizeText applies the normalization used for identity matching.
func NormalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Group returns the family name of u.
func (r *Registry) Group(u Unit) string {
	if b, ok := r.byKind[u.Kind]; ok && b.Group != nil {
		return b.Group(u)
	}
	return u.Kind.String()
}

// FileEdits returns the paths u may edit as a side effect.
func (r *Registry) FileEdits(u Unit) []string {
	if b, ok := r.byKind[u.Kind]; ok && b.FileEdits != nil {
		return b.FileEdits(u)
	}
	return nil
}

// EnquiryOnly reports whether u and its responses must not be recorded.
func (r *Registry) EnquiryOnly(u Unit, responses []Unit) bool {
	if b, ok := r.byKind[u.Kind]; ok && b.EnquiryOnly != nil {
		return b.EnquiryOnly(u, responses)
	}
	return false
}

// IsResponseOnly reports whether k only ever appears as an answer.
func (r *Registry) IsResponseOnly(k Kind) bool {
	b, ok := r.byKind[k]
	return ok && b.ResponseOnly
}

// Forward performs the real external call for u. A failure is converted into
// the kind's failure responses and also returned as a *ForwardingError so the
// caller can log it; the responses are what gets recorded.
func (r *Registry) Forward(ctx context.Context, u Unit) ([]Unit, error) {
	b, ok := r.byKind[u.Kind]
	if !ok || b.Forward == nil {
		return nil, nil
	}
	responses, err := b.Forward(ctx, u)
	if err != nil {
		ferr := &ForwardingError{Kind: u.Kind, Err: err}
		if b.Failure != nil {
			return b.Failure(u, ferr), ferr
		}
		return nil, ferr
	}
	return responses, nil
}

// Deliver hands response u to the caller on w and returns chained units.
func (r *Registry) Deliver(ctx context.Context, u Unit, w io.Writer) ([]Unit, error) {
	if b, ok := r.byKind[u.Kind]; ok && b.Deliver != nil {
		return b.Deliver(ctx, u, w)
	}
	if w == nil {
		return nil, nil
	}
	return nil, WriteFrame(w, r.Encode(u))
}
