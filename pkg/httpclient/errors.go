package httpclient

import "errors"

// Sentinel errors for HTTP client construction.
// Callers should use errors.Is() to check for these.
var (
	// ErrProxyURL indicates a proxy URL that cannot be parsed or lacks a host.
	ErrProxyURL = errors.New("httpclient: invalid proxy URL")

	// ErrProxyScheme indicates a proxy scheme this client cannot dial.
	ErrProxyScheme = errors.New("httpclient: unsupported proxy scheme")

	// ErrTLSProfile indicates an unknown TLS fingerprint profile name.
	ErrTLSProfile = errors.New("httpclient: unknown TLS profile")

	// ErrTLS indicates a TLS handshake failure on a fingerprinted connection.
	ErrTLS = errors.New("httpclient: TLS handshake failed")

	// ErrNoProxies indicates a proxy list with no usable entries.
	ErrNoProxies = errors.New("httpclient: no usable proxies")
)
