package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOptions 出站 Provider 客户端的网络参数
type ClientOptions struct {
	// ProxyURL 为空时使用 HTTPS_PROXY / NO_PROXY 环境变量
	ProxyURL string
	// DialTimeout 建立 TCP 连接的超时，0 为 30s
	DialTimeout time.Duration
	// ResponseHeaderTimeout 等待响应头（首字节）的超时，0 表示只受 context 约束。
	// 流式响应头到达后不再受此限制。
	ResponseHeaderTimeout time.Duration
	// MaxIdleConnsPerHost 0 为 http 包默认值
	MaxIdleConnsPerHost int
}

// NewTransport returns an http.Transport with TLS hardening and the given options.
func NewTransport(opts ClientOptions) (*http.Transport, error) {
	proxy := http.ProxyFromEnvironment
	if opts.ProxyURL != "" {
		u, err := ParseProxyURL(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		proxy = http.ProxyURL(u)
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	return &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}, nil
}

// NewProviderClient returns the client used for provider calls. It has no
// overall Timeout: generation and streaming deadlines come from the request
// context.
func NewProviderClient(opts ClientOptions) (*http.Client, error) {
	tr, err := NewTransport(opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: tr}, nil
}

// SecureHTTPClient returns a hardened client with default options.
// A zero timeout leaves the deadline to the request context.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	tr, _ := NewTransport(ClientOptions{})
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
}

// ParseProxyURL 校验代理地址：必须是带 host 的 http/https/socks5 URL
func ParseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("invalid proxy url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: missing host", raw)
	}
	return u, nil
}
