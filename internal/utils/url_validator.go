package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/rmitchellscott/graydither/internal/config"
)

// ErrURLNotAllowed is returned for source URLs rejected by the fetch policy
var ErrURLNotAllowed = errors.New("url not allowed")

var privateIPRanges = []*net.IPNet{
	mustParseCIDR("0.0.0.0/8"),      // "this" network
	mustParseCIDR("10.0.0.0/8"),     // RFC 1918
	mustParseCIDR("100.64.0.0/10"),  // RFC 6598 carrier-grade NAT
	mustParseCIDR("127.0.0.0/8"),    // loopback
	mustParseCIDR("169.254.0.0/16"), // RFC 3927 link-local
	mustParseCIDR("172.16.0.0/12"),  // RFC 1918
	mustParseCIDR("192.168.0.0/16"), // RFC 1918
	mustParseCIDR("::1/128"),
	mustParseCIDR("::/128"),
	mustParseCIDR("fe80::/10"),
	mustParseCIDR("fc00::/7"),
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse CIDR %s: %v", cidr, err))
	}
	return ipNet
}

// Resolver looks up the addresses of a host
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLPolicy decides which remote image URLs may be fetched
type URLPolicy struct {
	BlockPrivateIPs bool
	BlockedDomains  []string
	Resolver        Resolver
}

// NewURLPolicy builds the fetch policy from the service settings
func NewURLPolicy(settings *config.Settings) *URLPolicy {
	return &URLPolicy{
		BlockPrivateIPs: settings.BlockPrivateIPs,
		BlockedDomains:  settings.BlockedDomains,
		Resolver:        net.DefaultResolver,
	}
}

// Validate checks scheme, domain blocklist and, when enabled, that the host does not
// resolve to a private address. An unresolvable host is rejected when private IPs are
// blocked.
func (p *URLPolicy) Validate(ctx context.Context, rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrURLNotAllowed, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: unsupported URL scheme %q (only http and https are allowed)", ErrURLNotAllowed, parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: URL missing hostname", ErrURLNotAllowed)
	}
	if parsedURL.User != nil {
		return fmt.Errorf("%w: URLs with credentials are not allowed", ErrURLNotAllowed)
	}

	hostnameLower := strings.ToLower(hostname)
	for _, blockedDomain := range p.BlockedDomains {
		if hostnameLower == blockedDomain || strings.HasSuffix(hostnameLower, "."+blockedDomain) {
			return fmt.Errorf("%w: domain %s is blocked", ErrURLNotAllowed, hostname)
		}
	}

	if !p.BlockPrivateIPs {
		return nil
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: private IP address %s is blocked", ErrURLNotAllowed, ip)
		}
		return nil
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %v", ErrURLNotAllowed, hostname, err)
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("%w: private IP address %s is blocked for hostname %s", ErrURLNotAllowed, addr.IP, hostname)
		}
	}

	return nil
}

// maxRedirects bounds how many redirects a fetch follows
const maxRedirects = 5

// HTTPClient returns a client that applies the policy to every redirect target and,
// when private IPs are blocked, to the address actually dialed. The dial check covers
// hosts that resolve differently at connect time than during Validate.
func (p *URLPolicy) HTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p.BlockPrivateIPs {
		dialer.Control = rejectPrivateDial
		// A proxy would be dialed instead of the target
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return p.Validate(req.Context(), req.URL.String())
		},
	}
}

// rejectPrivateDial runs on the resolved address just before connecting
func rejectPrivateDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLNotAllowed, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: connection to private IP address %s is blocked", ErrURLNotAllowed, host)
	}
	return nil
}

// isPrivateIP checks if an IP address is in a private range
func isPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, privateRange := range privateIPRanges {
		if privateRange.Contains(ip) {
			return true
		}
	}
	return false
}
