package core

import (
	"net/url"
	"strings"

	"apiwatch/models"
)

// Matching is fail-closed throughout this file: malformed URLs and malformed
// patterns never match and never panic, and rewriting a URL that matches no
// rule returns it unchanged.

// MatchesAnyAPIPrefix reports whether rawURL matches at least one configured
// API prefix. An empty prefix set never matches; capture requires explicit
// configuration.
func MatchesAnyAPIPrefix(rawURL string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return false
	}
	for _, prefix := range prefixes {
		if MatchesAPIPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

// MatchesAPIPrefix matches rawURL against a single prefix. A prefix containing
// `*` is treated as a subdomain wildcard pattern; anything else is a literal
// byte-wise prefix.
func MatchesAPIPrefix(rawURL, prefix string) bool {
	if prefix == "" || rawURL == "" {
		return false
	}
	if strings.Contains(prefix, "*") {
		return matchesWildcardPrefix(rawURL, prefix)
	}
	return strings.HasPrefix(rawURL, prefix)
}

// matchesWildcardPrefix matches patterns of the form
// [scheme://]*.<base-domain>[/<path-prefix>]. Only subdomain wildcards are
// supported; a pattern whose domain part does not start with "*." never
// matches.
func matchesWildcardPrefix(rawURL, pattern string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}

	rest := pattern
	var requiredScheme string
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(rest, scheme) {
			requiredScheme = scheme
			rest = rest[len(scheme):]
			break
		}
	}
	if requiredScheme != "" && !strings.HasPrefix(rawURL, requiredScheme) {
		return false
	}

	domainPattern := rest
	pathPattern := ""
	if idx := strings.Index(rest, "/"); idx >= 0 {
		domainPattern = rest[:idx]
		pathPattern = rest[idx:]
	}

	if !strings.HasPrefix(domainPattern, "*.") {
		return false
	}
	baseDomain := domainPattern[2:]
	if baseDomain == "" {
		return false
	}

	host := u.Hostname()
	if host != baseDomain && !strings.HasSuffix(host, "."+baseDomain) {
		return false
	}

	if pathPattern != "" {
		pathAndQuery := u.Path
		if u.RawQuery != "" {
			pathAndQuery += "?" + u.RawQuery
		}
		return strings.HasPrefix(pathAndQuery, pathPattern)
	}
	return true
}

// RewriteURL applies the first enabled rewrite rule whose From is a literal
// prefix of rawURL, replacing that prefix with To. Rules are tried in list
// order; there is no cascading.
func RewriteURL(rawURL string, rules []models.RewriteRule) string {
	if rawURL == "" || len(rules) == 0 {
		return rawURL
	}
	for _, rule := range rules {
		if rule.Enabled && rule.From != "" && strings.HasPrefix(rawURL, rule.From) {
			return rule.To + rawURL[len(rule.From):]
		}
	}
	return rawURL
}

// ExtractDomain returns the hostname of rawURL, or "" when it cannot be
// parsed.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// normalizeHost strips an http(s) scheme prefix and a port suffix from a host
// or host-like config entry.
func normalizeHost(h string) string {
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	if idx := strings.Index(h, "/"); idx >= 0 {
		h = h[:idx]
	}
	if idx := strings.Index(h, ":"); idx >= 0 {
		h = h[:idx]
	}
	return h
}

// HostMatchesDomains reports whether host matches any configured domain entry.
// Entries may be exact hosts or *.base wildcards; a wildcard matches the base
// itself and any proper subdomain, never a partial label.
func HostMatchesDomains(host string, domains []string) bool {
	if host == "" || len(domains) == 0 {
		return false
	}
	cleanHost := normalizeHost(host)
	for _, entry := range domains {
		cleanEntry := normalizeHost(entry)
		if cleanEntry == "" {
			continue
		}
		if strings.HasPrefix(cleanEntry, "*.") {
			base := cleanEntry[2:]
			if cleanHost == base || strings.HasSuffix(cleanHost, "."+base) {
				return true
			}
			continue
		}
		if cleanHost == cleanEntry {
			return true
		}
	}
	return false
}

// DomainInScope reports whether capture is permitted on the given hostname.
// A disabled scope permits nothing.
func DomainInScope(host string, scope models.DomainScope) bool {
	if !scope.Enabled {
		return false
	}
	return HostMatchesDomains(host, scope.Domains)
}

// PageInScope reports whether capture is permitted on the page at pageURL.
// Internal browser-scheme pages are always out of scope regardless of
// configuration.
func PageInScope(pageURL string, scope models.DomainScope) bool {
	if !scope.Enabled || pageURL == "" {
		return false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return HostMatchesDomains(u.Hostname(), scope.Domains)
}
