package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		io.WriteString(w, "end")
	}))
	defer srv.Close()

	c, err := New(DefaultConfig())
	require.NoError(t, err)

	resp, err := c.Get(srv.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestNew_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "zerofox-test"
	c, err := New(cfg)
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "zerofox-test", got)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "explicit", got)
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{"socks4 proxy", Config{Proxy: "socks4://127.0.0.1:1080"}, ErrProxyScheme},
		{"ftp proxy", Config{Proxy: "ftp://127.0.0.1"}, ErrProxyScheme},
		{"proxy without host", Config{Proxy: "http://:8080"}, ErrProxyURL},
		{"bad tls profile", Config{TLSProfile: "netscape"}, ErrTLSProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNew_TLSProfiles(t *testing.T) {
	for _, p := range Profiles() {
		t.Run(p, func(t *testing.T) {
			_, err := New(Config{TLSProfile: p})
			assert.NoError(t, err)
		})
	}
}

func TestParseProxyURL(t *testing.T) {
	tests := []struct {
		in     string
		scheme string
		addr   string
		socks  bool
		user   string
	}{
		{"127.0.0.1:3128", "http", "127.0.0.1:3128", false, ""},
		{"http://proxy.local", "http", "proxy.local:8080", false, ""},
		{"socks5://u:p@10.0.0.1", "socks5", "10.0.0.1:1080", true, "u"},
		{"SOCKS5H://10.0.0.1:9050", "socks5h", "10.0.0.1:9050", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			pc, err := ParseProxyURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, pc.Scheme)
			assert.Equal(t, tt.addr, pc.Address())
			assert.Equal(t, tt.socks, pc.IsSOCKS)
			assert.Equal(t, tt.user, pc.Username)
		})
	}

	pc, err := ParseProxyURL("  ")
	assert.NoError(t, err)
	assert.Nil(t, pc)
}

func TestRotator_RoundRobin(t *testing.T) {
	// Plain-HTTP proxies receive absolute-form requests; each one tags its reply.
	proxy := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, name)
		}))
	}
	a, b := proxy("a"), proxy("b")
	defer a.Close()
	defer b.Close()

	r, err := NewRotator(DefaultConfig(), []string{a.URL, b.URL})
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	var seen []string
	for i := 0; i < 4; i++ {
		resp, err := r.Next().Get("http://target.invalid/?q=1")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		seen = append(seen, string(body))
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, seen)
	r.CloseIdleConnections()
}

func TestRotator_Direct(t *testing.T) {
	r, err := NewRotator(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Same(t, r.Next(), r.Next())
}

func TestRotator_BadProxy(t *testing.T) {
	_, err := NewRotator(DefaultConfig(), []string{"http://ok:1", "gopher://x"})
	assert.ErrorIs(t, err, ErrProxyScheme)
}

func TestLoadProxyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# list\nhttp://a:1\n\nsocks5://b:2\n"), 0o644))

	got, err := LoadProxyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:1", "socks5://b:2"}, got)

	require.NoError(t, os.WriteFile(path, []byte("http://a:1\nwat://b\n"), 0o644))
	_, err = LoadProxyFile(path)
	assert.ErrorIs(t, err, ErrProxyScheme)
	assert.Contains(t, err.Error(), ":2:")
}

func TestCreateSOCKSDialer(t *testing.T) {
	pc, err := ParseProxyURL("socks5h://127.0.0.1:1")
	require.NoError(t, err)
	d, err := CreateSOCKSDialer(pc, 0)
	require.NoError(t, err)
	assert.NotNil(t, d)

	hp, _ := ParseProxyURL("http://127.0.0.1:1")
	_, err = CreateSOCKSDialer(hp, 0)
	assert.ErrorIs(t, err, ErrProxyScheme)
}
