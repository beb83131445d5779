package dispatch

import (
	"time"

	"github.com/pitabwire/callwire/model"
)

// Builder assembles a Config step by step. Client must be called before
// DecoderFactory, Debug, or Timeout; an out-of-order call is recorded and
// returned by Build.
type Builder struct {
	cfg       Config
	opts      []Option
	clientSet bool
	err       error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Client sets the transport. A nil transport selects the default HTTP
// transport.
func (b *Builder) Client(t model.Transport) *Builder {
	b.cfg.Transport = t
	b.clientSet = true
	return b
}

// BaseURL sets the base URL.
func (b *Builder) BaseURL(u string) *Builder {
	b.cfg.BaseURL = u
	return b
}

// DecoderFactory sets the response decoder factory. Requires Client.
func (b *Builder) DecoderFactory(f model.DecoderFactory) *Builder {
	if b.requireClient("DecoderFactory") {
		b.cfg.DecoderFactory = f
	}
	return b
}

// Debug toggles exchange logging. Requires Client.
func (b *Builder) Debug(debug bool) *Builder {
	if b.requireClient("Debug") {
		b.cfg.Debug = debug
	}
	return b
}

// Timeout sets the exchange timeout of the default transport. Requires
// Client.
func (b *Builder) Timeout(d time.Duration) *Builder {
	if b.requireClient("Timeout") {
		b.cfg.Timeout = d
	}
	return b
}

// Options appends dispatcher options.
func (b *Builder) Options(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build returns the Dispatcher, or the first configuration order error.
func (b *Builder) Build() (*Dispatcher, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.cfg, b.opts...)
}

func (b *Builder) requireClient(step string) bool {
	if b.clientSet {
		return true
	}
	if b.err == nil {
		b.err = model.Errorf(model.ErrIllegalConfigurationOrder, "",
			"%s must be called after Client", step)
	}
	return false
}
