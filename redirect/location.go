package redirect

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Location is the page URL the auth provider redirected back to.
type Location interface {
	URL() *url.URL
	// Replace swaps the current URL without navigating, e.g. to strip the fragment
	Replace(u *url.URL)
}

// StaticLocation is a Location held in memory, e.g. a callback URL pasted into a CLI.
type StaticLocation struct {
	mu  sync.Mutex
	url *url.URL
}

// NewStaticLocation parses rawURL into a StaticLocation.
func NewStaticLocation(rawURL string) (*StaticLocation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &StaticLocation{url: u}, nil
}

func (l *StaticLocation) URL() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := *l.url
	return &u
}

func (l *StaticLocation) Replace(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *u
	l.url = &copied
}

// Cookies reads and expires named cookies for the API origin.
type Cookies interface {
	Get(name string) (string, bool)
	Expire(name string)
}

// JarCookies adapts an http.CookieJar scoped to one URL.
type JarCookies struct {
	Jar http.CookieJar
	URL *url.URL
}

func (c JarCookies) Get(name string) (string, bool) {
	for _, cookie := range c.Jar.Cookies(c.URL) {
		if cookie.Name == name {
			return cookie.Value, true
		}
	}
	return "", false
}

func (c JarCookies) Expire(name string) {
	c.Jar.SetCookies(c.URL, []*http.Cookie{{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	}})
}
