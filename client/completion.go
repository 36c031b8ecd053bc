// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"sync"
	"time"
)

// Completion is the single-assignment result of a Publish. It resolves once,
// either successfully when the broker acknowledged the message or with an
// error; later resolutions are ignored.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve reports whether this call resolved the completion.
func (c *Completion) resolve(err error) bool {
	resolved := false
	c.once.Do(func() {
		c.err = err
		close(c.done)
		resolved = true
	})
	return resolved
}

// Wait blocks until the completion resolves.
func (c *Completion) Wait() error {
	<-c.done
	return c.err
}

// WaitTimeout blocks until the completion resolves or the timeout elapses,
// in which case it returns ErrTimeout. The publish itself is not canceled.
func (c *Completion) WaitTimeout(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return c.err
	case <-timer.C:
		return ErrTimeout
	}
}

// WaitContext blocks until the completion resolves or ctx is done.
func (c *Completion) WaitContext(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that closes when the completion resolves.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Poll reports whether the completion resolved, and its error if it did.
func (c *Completion) Poll() (bool, error) {
	select {
	case <-c.done:
		return true, c.err
	default:
		return false, nil
	}
}

// Err returns the resolution error. It is nil while pending.
func (c *Completion) Err() error {
	_, err := c.Poll()
	return err
}

// Succeeded reports whether the completion resolved without error.
func (c *Completion) Succeeded() bool {
	done, err := c.Poll()
	return done && err == nil
}
