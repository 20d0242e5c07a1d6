package ws

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originChecker accepts requests whose Origin is on the allow-list. "*"
// allows everything; requests without an Origin header (non-browser
// clients) are always accepted.
type originChecker struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginChecker(origins []string) *originChecker {
	oc := &originChecker{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			oc.allowAll = true
			continue
		}
		norm, ok := normalizeOrigin(o)
		if !ok {
			zap.L().Warn("ws.origin_ignored", zap.String("origin", o))
			continue
		}
		oc.allowed[norm] = struct{}{}
	}
	return oc
}

func (oc *originChecker) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || oc.allowAll {
		return true
	}
	norm, ok := normalizeOrigin(header)
	if ok {
		if _, found := oc.allowed[norm]; found {
			return true
		}
	}
	zap.L().Warn("ws.origin_blocked", zap.String("origin", header))
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
