package domain

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLValidationError reports a download URL that failed the SSRF checks.
type URLValidationError struct {
	Reason string
}

func (e *URLValidationError) Error() string {
	return "download URL rejected: " + e.Reason
}

// ValidateDownloadURL checks a user-supplied download URL before any network
// traffic happens. Only http and https schemes are accepted. Unless
// allowPrivate is set, IP literals in private, loopback, link-local,
// multicast, unspecified, or reserved ranges are refused, as are localhost
// and .local hostnames. The same check runs again on every redirect hop.
func ValidateDownloadURL(raw string, allowPrivate bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return &URLValidationError{Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &URLValidationError{Reason: "only HTTP and HTTPS URLs are allowed"}
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return &URLValidationError{Reason: "URL has no host"}
	}

	if allowPrivate {
		return nil
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return validateIP(ip)
	}
	return validateHostname(hostname)
}

func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return &URLValidationError{Reason: "loopback addresses are not allowed"}
	case ip.IsPrivate():
		return &URLValidationError{Reason: "private addresses are not allowed"}
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return &URLValidationError{Reason: "link-local addresses are not allowed"}
	case ip.IsMulticast():
		return &URLValidationError{Reason: "multicast addresses are not allowed"}
	case ip.IsUnspecified():
		return &URLValidationError{Reason: "unspecified addresses are not allowed"}
	case isReservedV4(ip):
		return &URLValidationError{Reason: "reserved addresses are not allowed"}
	}
	return nil
}

// isReservedV4 reports whether ip falls in 240.0.0.0/4 (IETF reserved, class E).
func isReservedV4(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[0] >= 240
}

func validateHostname(hostname string) error {
	lower := strings.ToLower(hostname)
	if lower == "localhost" || lower == "localhost.localdomain" {
		return &URLValidationError{Reason: "localhost is not allowed"}
	}
	if strings.HasSuffix(lower, ".local") {
		return &URLValidationError{Reason: ".local domains are not allowed"}
	}
	return nil
}
