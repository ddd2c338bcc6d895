package config

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// NewBackendHTTPClient returns the client used for backend calls. HTTP/2 is
// negotiated over TLS when the backend offers it.
func NewBackendHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: transport,
		Timeout:   15 * time.Second,
	}, nil
}
