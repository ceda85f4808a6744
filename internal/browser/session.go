package browser

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned when no element matches an XPath.
var ErrNotFound = errors.New("element not found")

// Session is one browser tab. Lookups block until the element shows up or
// the session's wait timeout expires.
type Session interface {
	Navigate(url string) error
	Text(xpath string) (string, error)
	Attribute(xpath, name string) (string, error)
	Click(xpath string) error

	// OpenTab opens url in a new tab. Closing the returned session closes
	// only that tab.
	OpenTab(url string) (Session, error)
	Close() error
}

// CleanText folds compatibility characters such as non-breaking spaces and
// collapses runs of whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
