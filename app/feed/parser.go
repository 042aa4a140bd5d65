package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/mention-comb/app/content"
)

// Source tags parsed items with where they came from.
type Source struct {
	Platform  string
	Subreddit string
}

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS, Atom or JSON feed into content items. Items without a
// published date get fetchedAt.
func (p *Parser) Run(data []byte, source Source, fetchedAt time.Time) ([]content.Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]content.Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		normalized := p.normalizeItem(item, source, fetchedAt)
		normalized.ContentHash = normalized.Hash()
		items = append(items, normalized)
	}

	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, source Source, fetchedAt time.Time) content.Item {
	normalized := content.Item{
		GUID:      cmp.Or(item.GUID, item.Link),
		Title:     strings.TrimSpace(HTMLText(item.Title)),
		Body:      HTMLText(cmp.Or(item.Content, item.Description)),
		Author:    p.extractAuthor(item),
		Platform:  source.Platform,
		Subreddit: source.Subreddit,
		Link:      item.Link,
	}

	switch {
	case item.PublishedParsed != nil:
		normalized.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		normalized.PublishedAt = item.UpdatedParsed.UTC()
	default:
		normalized.PublishedAt = fetchedAt.UTC()
	}

	return normalized
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return p.formatAuthor(item.Authors[0].Name, item.Authors[0].Email)
	}
	if item.Author != nil {
		return p.formatAuthor(item.Author.Name, item.Author.Email)
	}
	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	}
	return email
}
