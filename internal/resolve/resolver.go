// Package resolve maps method descriptors onto call strategies and binds
// invocation arguments into parameter bags.
package resolve

import (
	"strings"

	"github.com/pitabwire/callwire/codec"
	"github.com/pitabwire/callwire/model"
)

// DefaultCodec is the body codec used when the body tag has no value.
const DefaultCodec = "json"

// TieBreak selects how a method carrying several verb+path tags resolves.
type TieBreak int

const (
	// TieBreakReject fails resolution with AMBIGUOUS_TAGS.
	TieBreakReject TieBreak = iota
	// TieBreakFirstMatch picks the tag whose kind was registered first.
	TieBreakFirstMatch
)

// ParseTieBreak converts a configuration value to a TieBreak.
func ParseTieBreak(s string) (TieBreak, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return TieBreakReject, true
	case "first_match", "first-match", "first":
		return TieBreakFirstMatch, true
	}
	return TieBreakReject, false
}

func (t TieBreak) String() string {
	if t == TieBreakFirstMatch {
		return "first_match"
	}
	return "reject"
}

// Resolution is the outcome of resolving one method.
type Resolution struct {
	Kind  model.TagKind
	Verb  string
	Path  string
	Codec string // body kind only
}

// Body reports whether the method resolved to the body strategy.
func (r Resolution) Body() bool {
	return r.Kind == model.KindBody
}

// Resolver resolves method descriptors against an ordered set of strategy
// kinds. It holds no mutable state.
type Resolver struct {
	kinds              []model.TagKind
	tieBreak           TieBreak
	allowExtraBodyArgs bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTieBreak sets the policy for methods with several verb+path tags.
func WithTieBreak(t TieBreak) Option {
	return func(r *Resolver) { r.tieBreak = t }
}

// WithExtraBodyArgs lets body methods declare more than one parameter. Only
// the first argument is sent.
func WithExtraBodyArgs() Option {
	return func(r *Resolver) { r.allowExtraBodyArgs = true }
}

// New creates a Resolver probing kinds in the given order. Every kind other
// than model.KindBody is treated as a verb+path kind.
func New(kinds []model.TagKind, opts ...Option) *Resolver {
	r := &Resolver{kinds: append([]model.TagKind(nil), kinds...)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TieBreak returns the configured tie-break policy.
func (r *Resolver) TieBreak() TieBreak {
	return r.tieBreak
}

// Resolve determines the strategy kind, verb, and path of a method.
func (r *Resolver) Resolve(desc model.MethodDescriptor) (Resolution, error) {
	name := desc.FullName()

	verbs := r.verbTags(desc)
	if len(verbs) > 1 && r.tieBreak == TieBreakReject {
		kinds := make([]string, len(verbs))
		for i, t := range verbs {
			kinds[i] = string(t.Kind)
		}
		return Resolution{}, model.Errorf(model.ErrAmbiguousTags, name,
			"method carries several verb tags: %s", strings.Join(kinds, ", "))
	}

	if body, ok := desc.Tag(model.KindBody); ok {
		if len(verbs) == 0 {
			return Resolution{}, model.NewError(model.ErrMissingVerbTag, name,
				"body tag requires a verb tag on the same method")
		}
		if desc.DeclaredArity() > 1 && !r.allowExtraBodyArgs {
			return Resolution{}, model.Errorf(model.ErrBodyArity, name,
				"body method must declare exactly one parameter, has %d", desc.DeclaredArity())
		}
		codecName := strings.TrimSpace(body.Value)
		if codecName == "" {
			codecName = DefaultCodec
		}
		if _, ok := codec.Lookup(codecName); !ok {
			return Resolution{}, model.Errorf(model.ErrInvalidDescriptor, name,
				"unknown body codec %q, want one of %s", codecName, strings.Join(codec.Names(), ", "))
		}
		return Resolution{
			Kind:  model.KindBody,
			Verb:  verbOf(verbs[0].Kind),
			Path:  verbs[0].Value,
			Codec: codecName,
		}, nil
	}

	if len(verbs) == 0 {
		return Resolution{}, model.NewError(model.ErrNoRecognizedTag, name,
			"method carries no recognized verb tag")
	}
	return Resolution{
		Kind: verbs[0].Kind,
		Verb: verbOf(verbs[0].Kind),
		Path: verbs[0].Value,
	}, nil
}

// verbTags returns the method's verb+path tags in kind registration order.
func (r *Resolver) verbTags(desc model.MethodDescriptor) []model.Tag {
	var out []model.Tag
	for _, k := range r.kinds {
		if k == model.KindBody {
			continue
		}
		if t, ok := desc.Tag(k); ok {
			out = append(out, t)
		}
	}
	return out
}

func verbOf(k model.TagKind) string {
	return strings.ToUpper(string(k))
}
