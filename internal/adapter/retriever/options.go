package retriever

import "log/slog"

// Option configures a retriever component.
type Option func(*component)

type component struct {
	name   string
	logger *slog.Logger
}

// WithLogger sets the logger. The component name is attached as an attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(c *component) {
		if logger != nil {
			c.logger = logger.With("component", c.name)
		}
	}
}

func newComponent(name string, opts []Option) component {
	c := component{name: name, logger: slog.Default().With("component", name)}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
