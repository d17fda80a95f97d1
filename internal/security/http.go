// Package security guards outbound HTTP fetches against SSRF.
//
// Source adapters talk to configured endpoints (a SearXNG instance, the
// arXiv API) and follow redirects from them. Redirect targets are the
// untrusted part: a compromised or misconfigured upstream must not be able
// to steer a fetch at internal networks or cloud metadata services.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// HTTP validates outbound request URLs.
//
// Hosts passed to NewHTTP are trusted and skip the internal-network
// checks. A self-hosted SearXNG instance commonly lives on localhost,
// which the checks would otherwise reject.
type HTTP struct {
	maxResponseSize int64
	allowedSchemes  []string
	trustedHosts    map[string]bool
}

// NewHTTP creates an HTTP validator trusting the given hostnames.
func NewHTTP(trustedHosts ...string) *HTTP {
	trusted := make(map[string]bool, len(trustedHosts))
	for _, h := range trustedHosts {
		trusted[strings.ToLower(h)] = true
	}
	return &HTTP{
		maxResponseSize: 5 * 1024 * 1024, // 5MB
		allowedSchemes:  []string{"http", "https"},
		trustedHosts:    trusted,
	}
}

// ValidateURL reports whether a URL is safe to fetch. It checks the
// scheme, the hostname, and every IP the hostname resolves to.
func (v *HTTP) ValidateURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if !slices.Contains(v.allowedSchemes, scheme) {
		return fmt.Errorf("disallowed protocol: %s (only http/https allowed)", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("invalid hostname")
	}

	if v.trustedHosts[strings.ToLower(hostname)] {
		return nil
	}

	if isDangerousHostname(hostname) {
		return fmt.Errorf("access denied: accessing internal networks or metadata services is not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("unable to resolve hostname: %w", err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("access denied: accessing internal network IPs is not allowed (%s)", ip.String())
		}
	}

	return nil
}

// MaxResponseSize returns the response body size limit for safe fetches.
func (v *HTTP) MaxResponseSize() int64 {
	return v.maxResponseSize
}

// CreateSafeHTTPClient creates a client that re-validates every redirect
// target and stops after 3 redirects.
func (v *HTTP) CreateSafeHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			if err := v.ValidateURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect to unsafe URL: %w", err)
			}
			return nil
		},
	}
}

// isDangerousHostname checks local hostnames and cloud metadata endpoints.
func isDangerousHostname(hostname string) bool {
	hostname = strings.ToLower(hostname)

	localHostnames := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
	}
	if slices.Contains(localHostnames, hostname) {
		return true
	}

	metadataEndpoints := []string{
		"169.254.169.254", // AWS, Azure, GCP
		"metadata.google.internal",
		"metadata",
	}
	for _, endpoint := range metadataEndpoints {
		if hostname == endpoint || strings.Contains(hostname, endpoint) {
			return true
		}
	}

	return false
}

// isPrivateIP checks if an IP falls in a private or reserved range.
func isPrivateIP(ip net.IP) bool {
	privateIPv4Ranges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // link-local (cloud metadata)
		"0.0.0.0/8",
		"224.0.0.0/4",
		"240.0.0.0/4",
	}
	for _, cidr := range privateIPv4Ranges {
		_, subnet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if subnet.Contains(ip) {
			return true
		}
	}

	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// IPv6 unique local addresses, fc00::/7.
	if len(ip) == net.IPv6len && (ip[0] == 0xfc || ip[0] == 0xfd) {
		return true
	}

	return false
}
