package client

import "time"

// Option configures a Reporter.
type Option func(*options)

type options struct {
	dialTimeout time.Duration
}

func defaultOptions() *options {
	return &options{dialTimeout: 5 * time.Second}
}

// WithDialTimeout sets how long New waits to establish the connection.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}
