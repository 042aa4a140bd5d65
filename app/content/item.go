package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Item is one scraped unit (post, comment, review). Matchers treat it as read-only.
type Item struct {
	GUID        string
	Title       string
	Body        string
	Author      string
	Platform    string
	Subreddit   string
	Link        string
	PublishedAt time.Time

	ContentHash string
}

// Text returns the lower-cased title and body joined by a space, the haystack
// every matcher searches.
func (i Item) Text() string {
	if i.Body == "" {
		return Normalize(i.Title)
	}
	return Normalize(i.Title + " " + i.Body)
}

// Hash returns ContentHash, computing it from the identifying fields when unset.
func (i Item) Hash() string {
	if i.ContentHash != "" {
		return i.ContentHash
	}
	return GenerateHash(i)
}

func GenerateHash(i Item) string {
	h := sha256.New()
	h.Write([]byte(i.GUID))
	h.Write([]byte{0})
	h.Write([]byte(i.Link))
	h.Write([]byte{0})
	h.Write([]byte(i.Title))
	h.Write([]byte{0})
	h.Write([]byte(i.Body))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize applies NFKC and Unicode lower-casing. A Caser is stateful, so one
// is created per call.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return cases.Lower(language.Und).String(norm.NFKC.String(s))
}

// CollapseSpace replaces every run of whitespace with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
