// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionPending(t *testing.T) {
	c := newCompletion()

	done, err := c.Poll()
	assert.False(t, done)
	assert.NoError(t, err)
	assert.False(t, c.Succeeded())
	assert.NoError(t, c.Err())
	assert.ErrorIs(t, c.WaitTimeout(10*time.Millisecond), ErrTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitContext(ctx), context.DeadlineExceeded)
}

func TestCompletionResolveOnce(t *testing.T) {
	c := newCompletion()

	require.True(t, c.resolve(nil))
	assert.False(t, c.resolve(errors.New("late")))

	assert.NoError(t, c.Wait())
	assert.True(t, c.Succeeded())
	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestCompletionFailure(t *testing.T) {
	c := newCompletion()
	c.resolve(ErrClientClosed)

	done, err := c.Poll()
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, c.WaitTimeout(time.Second), ErrClientClosed)
	assert.False(t, c.Succeeded())
}

func TestCompletionConcurrentResolve(t *testing.T) {
	c := newCompletion()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.resolve(nil) {
				wins.Add(1)
			}
		}()
	}

	waiters := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() { waiters <- c.Wait() }()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	for i := 0; i < 5; i++ {
		assert.NoError(t, <-waiters)
	}
}
