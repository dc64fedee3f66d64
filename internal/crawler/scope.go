package crawler

import (
	"net/url"
	"strings"
)

// domainPatternSet stores exact hosts and suffix wildcards derived from configuration.
type domainPatternSet struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainPatternSet(patterns []string) *domainPatternSet {
	matcher := &domainPatternSet{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			if suffix := strings.TrimPrefix(value, "*."); suffix != "" {
				matcher.addSuffix(suffix)
			}
		case strings.HasPrefix(value, "."):
			if suffix := strings.TrimPrefix(value, "."); suffix != "" {
				matcher.addSuffix(suffix)
			}
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *domainPatternSet) addSuffix(suffix string) {
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Matches reports whether host equals an exact entry or falls under a suffix.
// A nil set matches nothing.
func (b *domainPatternSet) Matches(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Scope decides which discovered links may be offered to the frontier.
//
// Excluded domains always lose. With FollowExternalLinks any other http(s)
// URL is in scope. Otherwise a link must live under the base URL prefix or
// on one of the allowed domains.
type Scope struct {
	baseURL         string
	baseHost        string
	followExternal  bool
	allowedDomains  *domainPatternSet
	excludedDomains *domainPatternSet
}

// NewScope builds a Scope from the run configuration.
func NewScope(cfg RunConfig) *Scope {
	base, err := NormalizeURL(cfg.BaseURL)
	if err != nil {
		base = cfg.BaseURL
	}
	return &Scope{
		baseURL:         base,
		baseHost:        HostOf(base),
		followExternal:  cfg.FollowExternalLinks,
		allowedDomains:  newDomainPatternSet(cfg.AllowedDomains),
		excludedDomains: newDomainPatternSet(cfg.ExcludedDomains),
	}
}

// Allows reports whether the normalized URL is in scope.
func (s *Scope) Allows(normalizedURL string) bool {
	u, err := url.Parse(normalizedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if s.excludedDomains.Matches(host) {
		return false
	}
	if s.followExternal {
		return true
	}
	if strings.HasPrefix(normalizedURL, s.baseURL) {
		return true
	}
	return s.allowedDomains.Matches(host)
}
