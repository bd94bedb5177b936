package client

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultHistoryTimeout = 10 * time.Second
)

type options struct {
	log            *zerolog.Logger
	dialTimeout    time.Duration
	historyTimeout time.Duration
	maxLineBytes   int
}

func defaultOptions() options {
	nop := zerolog.Nop()
	return options{
		log:            &nop,
		dialTimeout:    defaultDialTimeout,
		historyTimeout: defaultHistoryTimeout,
	}
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.log = logger
		}
	}
}

// WithDialTimeout bounds connection setup in Dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithHistoryTimeout bounds RequestHistory when the caller's context has no
// deadline. Zero waits until the context is cancelled or the session closes.
func WithHistoryTimeout(d time.Duration) Option {
	return func(o *options) { o.historyTimeout = d }
}

// WithMaxLineBytes sets the longest line accepted from the server.
func WithMaxLineBytes(n int) Option {
	return func(o *options) { o.maxLineBytes = n }
}
