package mailer

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var blockedCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // link-local, cloud metadata
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

var blockedHosts = map[string]bool{
	"localhost":     true,
	"0.0.0.0":       true,
	"127.0.0.1":     true,
	"::1":           true,
	"[::1]":         true,
	"ip6-localhost": true,
	"ip6-loopback":  true,
}

var allowedSMTPPorts = map[int]bool{25: true, 465: true, 587: true, 2525: true}

// lookupIP is replaced in tests.
var lookupIP = net.LookupIP

// ValidateEgressHost rejects hosts that are, or resolve to, non-public
// addresses. Every resolved address must be public.
func ValidateEgressHost(host string) error {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if blockedHosts[host] {
		return fmt.Errorf("security violation: localhost connections forbidden")
	}

	ips, err := lookupIP(host)
	if err != nil {
		return fmt.Errorf("hostname resolution failed")
	}
	if len(ips) == 0 {
		return fmt.Errorf("hostname resolves to no IP addresses")
	}
	for _, ip := range ips {
		if !isPublicIP(ip) {
			return fmt.Errorf("security violation: connection to private network blocked")
		}
	}
	return nil
}

// ValidateSMTPPort restricts SMTP to the standard submission ports.
func ValidateSMTPPort(port int) error {
	if allowedSMTPPorts[port] {
		return nil
	}
	return fmt.Errorf("non-standard SMTP port blocked")
}

// ValidateAPIEndpoint requires an https URL whose host passes ValidateEgressHost.
func ValidateAPIEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("mail API endpoint must use https")
	}
	return ValidateEgressHost(u.Hostname())
}

func isPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return false
		}
	}
	return true
}

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, cidr, err := net.ParseCIDR(b)
		if err != nil {
			panic(err)
		}
		out = append(out, cidr)
	}
	return out
}
