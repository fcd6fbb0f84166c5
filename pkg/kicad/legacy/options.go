package legacy

import "log/slog"

// Option configures a legacy parse
type Option func(*options)

type options struct {
	logger   *slog.Logger
	filename string
}

// WithLogger sets the logger used for skipped-block diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFilename records the source filename on the result
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
