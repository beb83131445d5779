package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/callwire/internal/observability"
	"github.com/pitabwire/callwire/internal/resolve"
	"github.com/pitabwire/callwire/model"
)

// Config is the complete dispatcher configuration. It is read once by New
// and never mutated afterwards.
type Config struct {
	// Transport performs exchanges. Nil selects the default HTTP transport.
	Transport model.Transport
	// BaseURL is prepended verbatim to every method path.
	BaseURL string
	// DecoderFactory decodes response payloads. Nil selects JSON.
	DecoderFactory model.DecoderFactory
	// Debug makes the transport log every exchange.
	Debug bool
	// Timeout bounds each exchange of the default HTTP transport.
	Timeout time.Duration
}

// TieBreak selects how a method carrying several verb tags resolves.
type TieBreak = resolve.TieBreak

// Tie-break policies.
const (
	TieBreakReject     = resolve.TieBreakReject
	TieBreakFirstMatch = resolve.TieBreakFirstMatch
)

type strategyEntry struct {
	kind model.TagKind
	ctor model.Constructor
}

type options struct {
	logger             *zap.Logger
	registerer         prometheus.Registerer
	metrics            *observability.Metrics
	strategies         []strategyEntry
	tieBreak           TieBreak
	allowExtraBodyArgs bool
	eager              bool
	cacheSize          int
}

// Option configures a Dispatcher.
type Option func(*options)

// WithLogger sets the logger. Resolution failures are logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers dispatch and transport metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMetrics shares a metrics set that is already registered, typically the
// one handed to a transport built outside the dispatcher. It takes precedence
// over WithRegisterer.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStrategy registers a call strategy for kind after the built-ins. Its
// tags are probed in registration order and its verb is the upper-cased kind.
func WithStrategy(kind model.TagKind, ctor model.Constructor) Option {
	return func(o *options) { o.strategies = append(o.strategies, strategyEntry{kind: kind, ctor: ctor}) }
}

// WithTieBreak sets the policy for methods with several verb tags. The
// default rejects them with AMBIGUOUS_TAGS.
func WithTieBreak(t TieBreak) Option {
	return func(o *options) { o.tieBreak = t }
}

// WithExtraBodyArgs lets body methods declare more than one parameter; only
// the first argument is sent.
func WithExtraBodyArgs() Option {
	return func(o *options) { o.allowExtraBodyArgs = true }
}

// WithEagerValidation resolves every method when an interface is created or
// registered, so declaration mistakes fail before the first invocation.
func WithEagerValidation() Option {
	return func(o *options) { o.eager = true }
}

// WithCacheSize bounds the number of struct types whose descriptors are
// cached.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}
