// Package cookiestore persists the cookies a client holds for one server, so
// that separate CLI invocations share a session like tabs of one browser
// profile do.
package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

type storedCookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Path     string     `json:"path,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	HttpOnly bool       `json:"httpOnly,omitempty"`
}

func (c storedCookie) expired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

func (c storedCookie) httpCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if hc.Path == "" {
		hc.Path = "/"
	}
	if c.Expires != nil {
		hc.Expires = *c.Expires
	}
	return hc
}

// FileJar is an http.CookieJar that mirrors the cookies for one origin into
// a file after every update. Expiry and the Secure and HttpOnly flags are
// kept, so a restored cookie lapses when the server said it would.
type FileJar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	origin  *url.URL
	path    string
	now     func() time.Time
	entries map[string]storedCookie
}

// Open loads the jar stored at path for origin. A missing file yields an
// empty jar; cookies that expired while stored are dropped.
func Open(path string, origin *url.URL) (*FileJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	fj := &FileJar{
		jar:     jar,
		origin:  origin,
		path:    path,
		now:     time.Now,
		entries: make(map[string]storedCookie),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fj, nil
	case err != nil:
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode cookie file %s: %w", path, err)
	}

	now := fj.now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.expired(now) {
			continue
		}
		fj.entries[c.Name] = c
		cookies = append(cookies, c.httpCookie())
	}
	jar.SetCookies(origin, cookies)

	return fj, nil
}

// SetCookies implements http.CookieJar and writes the result through to disk.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	if u.Hostname() != j.origin.Hostname() {
		return
	}

	now := j.now()
	for _, c := range cookies {
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		switch {
		case c.MaxAge < 0:
			delete(j.entries, c.Name)
			continue
		case c.MaxAge > 0:
			exp := now.Add(time.Duration(c.MaxAge) * time.Second).UTC()
			sc.Expires = &exp
		case !c.Expires.IsZero():
			exp := c.Expires.UTC()
			sc.Expires = &exp
		}
		if sc.expired(now) {
			delete(j.entries, c.Name)
			continue
		}
		j.entries[c.Name] = sc
	}

	// http.CookieJar has no error channel; a failed write only costs the
	// next invocation its session.
	_ = j.save()
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.jar.Cookies(u)
}

// Clear forgets every cookie for the origin and removes the file.
func (j *FileJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	j.jar = jar
	j.entries = make(map[string]storedCookie)

	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (j *FileJar) save() error {
	stored := make([]storedCookie, 0, len(j.entries))
	for _, c := range j.entries {
		stored = append(stored, c)
	}
	sort.Slice(stored, func(a, b int) bool { return stored[a].Name < stored[b].Name })

	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return err
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, j.path)
}
