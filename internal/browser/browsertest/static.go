// Package browsertest serves fixed HTML documents through the
// browser.Session interface so that scraping code can be exercised without
// launching Chromium.
package browsertest

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/AlfredBerg/rod-jobscraper/internal/browser"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Site is a set of pages keyed by absolute URL.
type Site struct {
	pages map[string]string

	mu       sync.Mutex
	visits   []string
	openTabs int
}

func NewSite(pages map[string]string) *Site {
	return &Site{pages: pages}
}

// Visits lists every URL loaded so far, in order.
func (s *Site) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

// OpenTabs is the number of tabs opened with OpenTab and not closed yet.
func (s *Site) OpenTabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openTabs
}

// Session returns a blank root tab.
func (s *Site) Session() *Session {
	return &Session{site: s}
}

type Session struct {
	site  *Site
	url   *url.URL
	doc   *html.Node
	isTab bool
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Navigate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", rawURL, err)
	}

	s.site.mu.Lock()
	body, ok := s.site.pages[u.String()]
	s.site.visits = append(s.site.visits, u.String())
	s.site.mu.Unlock()
	if !ok {
		return fmt.Errorf("navigating to %s: 404 not found", rawURL)
	}

	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	s.url, s.doc = u, doc
	return nil
}

func (s *Session) node(xpath string) (*html.Node, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("%w: %s: no page loaded", browser.ErrNotFound, xpath)
	}
	n, err := htmlquery.Query(s.doc, xpath)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", xpath, err)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, xpath)
	}
	return n, nil
}

func (s *Session) Text(xpath string) (string, error) {
	n, err := s.node(xpath)
	if err != nil {
		return "", err
	}
	return browser.CleanText(htmlquery.InnerText(n)), nil
}

// Attribute resolves href against the page URL, as a browser's href
// property does.
func (s *Session) Attribute(xpath, name string) (string, error) {
	n, err := s.node(xpath)
	if err != nil {
		return "", err
	}
	for _, a := range n.Attr {
		if a.Key != name {
			continue
		}
		if name == "href" {
			ref, err := url.Parse(a.Val)
			if err != nil {
				return "", fmt.Errorf("parsing href of %s: %w", xpath, err)
			}
			return s.url.ResolveReference(ref).String(), nil
		}
		return a.Val, nil
	}
	return "", fmt.Errorf("%w: %s has no %s", browser.ErrNotFound, xpath, name)
}

// Click follows the href of the matched element.
func (s *Session) Click(xpath string) error {
	target, err := s.Attribute(xpath, "href")
	if err != nil {
		return fmt.Errorf("clicking %s: %w", xpath, err)
	}
	return s.Navigate(target)
}

func (s *Session) OpenTab(rawURL string) (browser.Session, error) {
	tab := &Session{site: s.site, isTab: true}
	if err := tab.Navigate(rawURL); err != nil {
		return nil, err
	}

	s.site.mu.Lock()
	s.site.openTabs++
	s.site.mu.Unlock()
	return tab, nil
}

func (s *Session) Close() error {
	if s.isTab {
		s.site.mu.Lock()
		s.site.openTabs--
		s.site.mu.Unlock()
		s.isTab = false
	}
	s.doc = nil
	return nil
}
