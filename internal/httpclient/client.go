// Package httpclient is the centralized HTTP client factory for upstream
// provider calls. Two timeout profiles exist: desktop and mobile, the
// latter tuned for slow links (Termux and friends).
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Profile holds the timeout set for one deployment mode.
type Profile struct {
	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers. Streaming reads are
	// bounded by the overall Timeout, not per-chunk.
	ReadTimeout time.Duration
	// Timeout is the total deadline for one call.
	Timeout time.Duration
}

// DesktopProfile is the default timeout set.
func DesktopProfile() Profile {
	return Profile{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    60 * time.Second,
		Timeout:        120 * time.Second,
	}
}

// MobileProfile stretches every timeout for slow mobile networks.
func MobileProfile() Profile {
	return Profile{
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    120 * time.Second,
		Timeout:        240 * time.Second,
	}
}

// ProfileFor returns the profile for the given mode.
func ProfileFor(mobile bool) Profile {
	if mobile {
		return MobileProfile()
	}
	return DesktopProfile()
}

// New creates an HTTP client for the given profile.
func New(p Profile) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   p.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: p.ReadTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   p.Timeout,
	}
}
