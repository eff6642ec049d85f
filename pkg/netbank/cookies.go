package netbank

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// cookieKey identifies a cookie the way the jar does, a server can hold several
// cookies of the same name under different domains or paths.
type cookieKey struct {
	name   string
	domain string
	path   string
}

func defaultCookiePath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func keyOf(u *url.URL, c *http.Cookie) cookieKey {
	domain := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if domain == "" {
		domain = strings.ToLower(u.Hostname())
	}
	path := c.Path
	if path == "" || path[0] != '/' {
		path = defaultCookiePath(u.Path)
	}
	return cookieKey{name: c.Name, domain: domain, path: path}
}

type storedCookie struct {
	origin *url.URL
	cookie http.Cookie
	seq    uint64
}

// cookieStore is a cookie jar that also remembers the full attributes (and the url)
// of every cookie it holds, so a cookie can be read back and written again exactly
// as the server set it.
type cookieStore struct {
	jar *cookiejar.Jar

	mutex sync.Mutex
	seq   uint64
	seen  map[cookieKey]storedCookie
}

func newCookieStore() (*cookieStore, error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, err
	}
	return &cookieStore{
		jar:  jar,
		seen: map[cookieKey]storedCookie{},
	}, nil
}

func expired(c *http.Cookie) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && c.Expires.Before(time.Now())
}

func (s *cookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, c := range cookies {
		key := keyOf(u, c)
		if expired(c) {
			delete(s.seen, key)
			continue
		}
		s.seq++
		origin := *u
		s.seen[key] = storedCookie{origin: &origin, cookie: *c, seq: s.seq}
	}
}

func (s *cookieStore) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// Get returns the value of the most recently set cookie named `name` that is still held.
func (s *cookieStore) Get(name string) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var latest *storedCookie
	for key, stored := range s.seen {
		if key.name != name {
			continue
		}
		if latest == nil || stored.seq > latest.seq {
			stored := stored
			latest = &stored
		}
	}
	if latest == nil {
		return "", false
	}
	return latest.cookie.Value, true
}

type cookieSnapshot struct {
	name    string
	entries map[cookieKey]storedCookie
}

func (s *cookieStore) snapshot(name string) cookieSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := cookieSnapshot{name: name, entries: map[cookieKey]storedCookie{}}
	for key, stored := range s.seen {
		if key.name == name {
			snap.entries[key] = stored
		}
	}
	return snap
}

// restore puts every cookie of the snapshot's name back the way it was when the
// snapshot was taken. Cookies of that name set since then, in any scope, are expired.
func (s *cookieStore) restore(snap cookieSnapshot) {
	s.mutex.Lock()
	var stale []storedCookie
	for key, stored := range s.seen {
		if key.name != snap.name {
			continue
		}
		if _, ok := snap.entries[key]; !ok {
			stale = append(stale, stored)
		}
	}
	s.mutex.Unlock()

	for _, stored := range stale {
		c := stored.cookie
		c.Value = ""
		c.MaxAge = -1
		s.SetCookies(stored.origin, []*http.Cookie{&c})
	}
	for _, stored := range snap.entries {
		c := stored.cookie
		s.SetCookies(stored.origin, []*http.Cookie{&c})
	}
}
