package httpclient

import (
	"context"
	"fmt"
	"net"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// TLS profile names accepted by Config.TLSProfile.
const (
	ProfileGo      = "go"
	ProfileChrome  = "chrome"
	ProfileFirefox = "firefox"
	ProfileSafari  = "safari"
	ProfileRandom  = "random"
)

// Profiles lists the accepted TLS profile names.
func Profiles() []string {
	return []string{ProfileGo, ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom}
}

func helloFor(name string) (utls.ClientHelloID, error) {
	switch strings.ToLower(name) {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloSafari_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("%w: %q", ErrTLSProfile, name)
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// utlsDialer returns a DialTLSContext that handshakes with the given
// fingerprint over connections from dial. The ALPN list is pinned to
// http/1.1 because net/http cannot speak h2 over a uTLS conn.
func utlsDialer(dial dialFunc, hello utls.ClientHelloID, skipVerify bool) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		cfg := &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: skipVerify,
		}

		var uConn *utls.UConn
		if hello == utls.HelloRandomizedNoALPN {
			uConn = utls.UClient(conn, cfg, hello)
		} else {
			spec, err := utls.UTLSIdToSpec(hello)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("%w: %v", ErrTLSProfile, err)
			}
			for _, ext := range spec.Extensions {
				if alpn, ok := ext.(*utls.ALPNExtension); ok {
					alpn.AlpnProtocols = []string{"http/1.1"}
				}
			}
			uConn = utls.UClient(conn, cfg, utls.HelloCustom)
			if err := uConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%w: %v", ErrTLSProfile, err)
			}
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrTLS, host, err)
		}
		return uConn, nil
	}
}
