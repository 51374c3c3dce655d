package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// expiringJar is a cookie jar that remembers when each API cookie expires.
// net/http/cookiejar keeps that to itself, and the cookie file needs it to
// drop browser-session cookies.
type expiringJar struct {
	*cookiejar.Jar

	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func newExpiringJar() (*expiringJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &expiringJar{Jar: jar, expires: map[string]time.Time{}, now: time.Now}, nil
}

func (j *expiringJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	for _, c := range cookies {
		switch {
		case c.MaxAge < 0:
			delete(j.expires, c.Name)
		case c.MaxAge > 0:
			j.expires[c.Name] = j.now().Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			j.expires[c.Name] = c.Expires
		default:
			// Session cookie.
			j.expires[c.Name] = time.Time{}
		}
	}
	j.mu.Unlock()
	j.Jar.SetCookies(u, cookies)
}

func (j *expiringJar) expiry(name string) time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.expires[name]
}

// cookieFile keeps persistent API cookies between invocations, so a login
// with --remember survives until logout or expiry. Session cookies end with
// the invocation, the way they end with a browser session.
type cookieFile struct {
	path string
	base *url.URL
}

func defaultCookiePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sanctusctl", "cookies.json")
}

// load returns a jar seeded with the stored, unexpired cookies. A missing
// file yields an empty jar.
func (f cookieFile) load() (*expiringJar, error) {
	jar, err := newExpiringJar()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jar, nil
		}
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var stored map[string][]storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", f.path, err)
	}

	now := jar.now()
	var cookies []*http.Cookie
	for _, c := range stored[f.base.String()] {
		if c.Expires.IsZero() || !c.Expires.After(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/", Expires: c.Expires})
	}
	jar.SetCookies(f.root(), cookies)
	return jar, nil
}

// save writes the jar's persistent cookies for the API, keeping entries for
// other APIs.
func (f cookieFile) save(jar *expiringJar) error {
	stored := map[string][]storedCookie{}
	if data, err := os.ReadFile(f.path); err == nil {
		_ = json.Unmarshal(data, &stored)
	}

	var cookies []storedCookie
	for _, c := range jar.Cookies(f.root()) {
		expires := jar.expiry(c.Name)
		if expires.IsZero() {
			continue
		}
		cookies = append(cookies, storedCookie{Name: c.Name, Value: c.Value, Expires: expires.UTC()})
	}
	if len(cookies) == 0 {
		delete(stored, f.base.String())
	} else {
		stored[f.base.String()] = cookies
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f cookieFile) root() *url.URL {
	return &url.URL{Scheme: f.base.Scheme, Host: f.base.Host, Path: "/"}
}
