package hosterrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Threshold(t *testing.T) {
	tr := New(3, time.Minute)

	assert.False(t, tr.MarkError("http://a.example:8080/x"))
	assert.False(t, tr.MarkError("a.example"))
	assert.False(t, tr.Dead("A.EXAMPLE"))
	assert.True(t, tr.MarkError("a.example:443"))
	assert.True(t, tr.Dead("a.example"))
	assert.False(t, tr.Dead("b.example"))
	assert.Equal(t, 1, tr.DeadHosts())
	assert.Equal(t, int64(1), tr.Skipped())
}

func TestTracker_SuccessResets(t *testing.T) {
	tr := New(2, time.Minute)
	tr.MarkError("a")
	tr.MarkSuccess("a")
	assert.False(t, tr.MarkError("a"), "count must restart after success")
}

func TestTracker_Expiry(t *testing.T) {
	tr := New(1, 10*time.Millisecond)
	tr.MarkError("a")
	assert.True(t, tr.Dead("a"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, tr.Dead("a"))
}

func TestTracker_Disabled(t *testing.T) {
	for _, tr := range []*Tracker{New(0, time.Minute), nil} {
		assert.False(t, tr.MarkError("a"))
		assert.False(t, tr.Dead("a"))
		assert.Zero(t, tr.Skipped())
		assert.Zero(t, tr.DeadHosts())
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New(100, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.MarkError("a")
			tr.Dead("a")
		}()
	}
	wg.Wait()
	assert.True(t, tr.Dead("a"))
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, true},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true},
		{"read", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("timeout")}, false},
		{"wrapped refused", fmt.Errorf("get: %w", errors.New("connect: connection refused")), true},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNetworkError(tt.err))
		})
	}
}
