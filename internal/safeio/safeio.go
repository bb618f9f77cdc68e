// Package safeio provides the filesystem and network safety primitives
// Zimi needs when acting on user-controlled input: archive directory
// path joins, download filenames, and catalog/update URLs.
package safeio

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response body reads when no
// Content-Length is known (1 MiB; downloads use their own, larger cap).
const MaxResponseBody int64 = 1 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("safeio: path traversal detected")

// ErrSSRF is returned when a URL targets a private/loopback address.
var ErrSSRF = errors.New("safeio: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("safeio: only http and https schemes are allowed")

// JoinArchivePath validates that joining dataDir and an archive-relative
// userInput does not escape dataDir. Returns the cleaned absolute path
// or ErrPathTraversal.
func JoinArchivePath(dataDir, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(dataDir, filepath.Clean("/"+userInput))
	base := filepath.Clean(dataDir)
	if cleaned != base && !strings.HasPrefix(cleaned, base+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// SafeFilename rejects download filenames containing path separators,
// traversal sequences, or characters outside [\w.-].
func SafeFilename(name string) error {
	if name == "" {
		return fmt.Errorf("safeio: empty filename")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return ErrPathTraversal
	}
	for _, r := range name {
		if !(r == '.' || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return fmt.Errorf("safeio: invalid character %q in filename", r)
		}
	}
	return nil
}

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback address (SSRF prevention). Used
// before every catalog fetch.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("safeio: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("safeio: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable hostname: let the HTTP client fail naturally rather
		// than reject a possibly-valid external host.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, cidr := range []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
		"fc00::/7", "169.254.0.0/16", "::1/128",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
