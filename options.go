package resgo

import (
	"log/slog"
)

// Option customizes an Engine.
type Option func(*options)

type options struct {
	metrics MetricsCollector
	logger  *Logger
}

// WithMetricsCollector reports engine operations to mc. A nil mc disables
// reporting.
//
//	m := &resgo.BasicMetricsCollector{}
//	e, _ := resgo.New(resgo.DefaultConfig(), resgo.WithMetricsCollector(m))
//	defer e.Close()
//	fmt.Println(m.GetStats().EvictBytes)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
		if o.metrics == nil {
			o.metrics = NoopMetricsCollector{}
		}
	}
}

// WithLogger routes engine, table and cache file logs to l. A nil l silences
// them.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
		if o.logger == nil {
			o.logger = NoopLogger()
		}
	}
}

// WithLogLevel is shorthand for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return WithLogger(NewTextLogger(level))
}

func applyOptions(opts []Option) options {
	o := options{metrics: NoopMetricsCollector{}, logger: NoopLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
