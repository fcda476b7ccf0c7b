package rpc

import "time"

func WithClockForTest(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
