package upstream

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the default vendor endpoint base.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient replaces the default HTTP/2 client. Tests use this to point
// at plain-HTTP stub servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// defaultHTTPClient keeps long-lived HTTP/2 connections healthy across the
// idle gaps between account operations.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http2.Transport{
			ReadIdleTimeout: 30 * time.Second,
			PingTimeout:     10 * time.Second,
		},
	}
}
