package utils

import (
	"net/http"
	"net/url"
	"strings"
)

// firstValue returns the first entry of a comma separated proxy header.
// Chained proxies append their own value after the client-facing one.
func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// forwardedParams reads the proto and host pairs of the first hop of an RFC 7239 Forwarded header
func forwardedParams(v string) (proto, host string) {
	for _, pair := range strings.Split(firstValue(v), ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		val = strings.Trim(val, `"`)
		switch strings.ToLower(key) {
		case "proto":
			proto = strings.ToLower(val)
		case "host":
			host = val
		}
	}
	return proto, host
}

// URLFromRequest returns the scheme and host clients used to reach the service.
// A direct TLS connection always means https. Otherwise the Forwarded header is
// preferred over X-Forwarded-Proto and X-Forwarded-Host.
func URLFromRequest(r *http.Request) *url.URL {
	u := &url.URL{Scheme: "http", Host: r.Host}

	proto, host := forwardedParams(r.Header.Get("Forwarded"))
	if proto == "" {
		proto = strings.ToLower(firstValue(r.Header.Get("X-Forwarded-Proto")))
	}
	if host == "" {
		host = firstValue(r.Header.Get("X-Forwarded-Host"))
	}

	if host != "" {
		u.Host = host
	}
	if r.TLS != nil || proto == "https" {
		u.Scheme = "https"
	}
	return u
}

// AbsoluteURL resolves path against the externally visible base URL of the request
func AbsoluteURL(r *http.Request, path string) string {
	u := URLFromRequest(r)
	u.Path = path
	return u.String()
}
