package server

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
)

const anyOrigin = "*"

// originAllowList holds canonical "scheme://host[:port]" origins that may
// open a WebSocket. The entry "*" admits any well-formed origin.
type originAllowList map[string]struct{}

func parseOriginAllowList(entries []string) originAllowList {
	list := make(originAllowList, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch entry {
		case "":
			continue
		case anyOrigin:
			list[anyOrigin] = struct{}{}
			continue
		}

		origin, err := canonicalOrigin(entry)
		if err != nil {
			log.Printf("Ignoring allowed origin %q: %v", entry, err)
			continue
		}
		list[origin] = struct{}{}
	}
	return list
}

// canonicalOrigin lowercases scheme and host and drops any path.
func canonicalOrigin(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty origin")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("origin needs a scheme and a host")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

func (l originAllowList) permits(origin string) bool {
	canonical, err := canonicalOrigin(origin)
	if err != nil {
		return false
	}
	if _, ok := l[anyOrigin]; ok {
		return true
	}
	_, ok := l[canonical]
	return ok
}

// check is the websocket.Upgrader CheckOrigin hook. Requests without an
// Origin header are refused.
func (l originAllowList) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if l.permits(origin) {
		return true
	}
	log.Printf("Blocked WebSocket connection from %s with origin %q", r.RemoteAddr, origin)
	return false
}
