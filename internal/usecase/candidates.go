package usecase

import (
	"net/url"
	"strings"
)

// DefaultBlockedDomains refuse hot-linking, so their images never load.
var DefaultBlockedDomains = []string{
	"lookaside.instagram.com",
	"instagram.com",
	"pinterest.com",
	"facebook.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
}

// FilterCandidates keeps absolute http(s) URLs whose host is not blocked,
// dropping duplicates.
func FilterCandidates(urls []string, blocked []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if IsBlockedHost(u.Hostname(), blocked) {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}
	return out
}

// IsBlockedHost matches host against blocked domains and their subdomains.
func IsBlockedHost(host string, blocked []string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, domain := range blocked {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
