package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopConnector() (Connector, error) {
	return Func(func(context.Context, []map[string]any, [][]byte) (*Response, error) {
		return &Response{}, nil
	}), nil
}

func TestPool_ReusesReleased(t *testing.T) {
	dials := 0
	p := NewPool(2, func() (Connector, error) {
		dials++
		return nopConnector()
	})

	_, release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release() // idempotent

	_, release2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release2()

	assert.Equal(t, 1, dials)
	open, idle := p.Stats()
	assert.Equal(t, 1, open)
	assert.Equal(t, 0, idle)
}

func TestPool_BlocksAtCapacity(t *testing.T) {
	p := NewPool(1, nopConnector)

	_, release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		_, r, err := p.Acquire(context.Background())
		if r != nil {
			r()
		}
		done <- err
	}()
	release()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestPool_WithReleasesOnError(t *testing.T) {
	p := NewPool(1, nopConnector)
	boom := errors.New("boom")

	err := p.With(context.Background(), func(Connector) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, idle := p.Stats()
	assert.Equal(t, 1, idle)
}

func TestPool_DialFailureFreesSlot(t *testing.T) {
	fail := true
	p := NewPool(1, func() (Connector, error) {
		if fail {
			return nil, errors.New("no socket")
		}
		return nopConnector()
	})

	_, _, err := p.Acquire(context.Background())
	require.ErrorContains(t, err, "no socket")

	fail = false
	_, release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(1, nopConnector)
	p.Close()
	_, _, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
