// Package wait retries a condition until it holds, bounded by a timeout.
// Tests use it to wait for listeners and HTTP surfaces to come up without
// fixed sleeps.
package wait

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrTimeout is returned when the condition does not hold in time.
var ErrTimeout = errors.New("wait: timeout exceeded")

// ConditionFunc reports whether the awaited condition holds. A non-nil
// error aborts the wait immediately.
type ConditionFunc func() (bool, error)

// Options configures wait behavior
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Context  context.Context
}

// DefaultOptions returns the defaults: a five second timeout polled
// every 25 milliseconds.
func DefaultOptions() *Options {
	return &Options{
		Timeout:  5 * time.Second,
		Interval: 25 * time.Millisecond,
		Context:  context.Background(),
	}
}

// WithTimeout sets the overall timeout
func (o *Options) WithTimeout(d time.Duration) *Options {
	o.Timeout = d
	return o
}

// WithInterval sets the pause between attempts
func (o *Options) WithInterval(d time.Duration) *Options {
	o.Interval = d
	return o
}

// Until waits until the condition returns true, the timeout elapses, or
// the condition itself fails.
func Until(condition ConditionFunc, opts ...*Options) error {
	options := DefaultOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	ctx, cancel := context.WithTimeout(options.Context, options.Timeout)
	defer cancel()

	for {
		ok, err := condition()
		if err != nil {
			return fmt.Errorf("wait: condition failed: %w", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		case <-time.After(options.Interval):
		}
	}
}

// ForTCP waits until a TCP connection to address succeeds
func ForTCP(address string, opts ...*Options) error {
	return Until(func() (bool, error) {
		conn, err := net.DialTimeout("tcp", address, time.Second)
		if err != nil {
			return false, nil
		}
		conn.Close()
		return true, nil
	}, opts...)
}

// ForHTTP waits until the URL answers with status 200
func ForHTTP(url string, opts ...*Options) error {
	client := &http.Client{Timeout: time.Second}
	return Until(func() (bool, error) {
		resp, err := client.Get(url)
		if err != nil {
			return false, nil
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK, nil
	}, opts...)
}
