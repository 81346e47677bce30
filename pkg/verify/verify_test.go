package verify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc(t *testing.T) {
	var gotURL, gotPayload string
	v := Func(func(_ context.Context, u, p string) (bool, error) {
		gotURL, gotPayload = u, p
		return true, nil
	})

	ok, err := v.Verify(context.Background(), "http://t/?q=x", "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://t/?q=x", gotURL)
	assert.Equal(t, "x", gotPayload)
}

func TestLimited_Throttles(t *testing.T) {
	var calls atomic.Int32
	v := NewLimited(Func(func(context.Context, string, string) (bool, error) {
		calls.Add(1)
		return false, nil
	}), 20)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), "u", "p")
		require.NoError(t, err)
	}
	// burst of one, then two waits of 50ms
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLimited_Unlimited(t *testing.T) {
	v := NewLimited(Func(func(context.Context, string, string) (bool, error) { return true, nil }), 0)
	start := time.Now()
	for i := 0; i < 50; i++ {
		ok, err := v.Verify(context.Background(), "u", "p")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimited_Canceled(t *testing.T) {
	v := NewLimited(Func(func(context.Context, string, string) (bool, error) {
		t.Fatal("must not be called")
		return false, nil
	}), 0.1)
	// consume the burst token
	v.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Verify(ctx, "u", "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimited_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	v := NewLimited(Func(func(context.Context, string, string) (bool, error) { return false, boom }), 0)
	_, err := v.Verify(context.Background(), "u", "p")
	assert.ErrorIs(t, err, boom)
}

func TestNewBrowser_MissingBinary(t *testing.T) {
	_, err := NewBrowser(context.Background(), BrowserConfig{ExecPath: "/nonexistent/chrome-binary"})
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestBrowser_DetectsDialog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, err := FindChrome(); err != nil {
		t.Skip("chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>"+r.URL.Query().Get("q")+"</body></html>")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b, err := NewBrowser(ctx, BrowserConfig{Settle: 200 * time.Millisecond})
	require.NoError(t, err)
	defer b.Close()

	ok, err := b.Verify(ctx, srv.URL+"/?q=%3Cscript%3Ealert(1)%3C%2Fscript%3E", "<script>alert(1)</script>")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Verify(ctx, srv.URL+"/?q=hello", "hello")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, BrowserStats{Pages: 2, Dialogs: 1}, b.Stats())

	require.NoError(t, b.Close())
	_, err = b.Verify(ctx, srv.URL, "x")
	assert.ErrorIs(t, err, ErrClosed)
}
