package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/mention-comb/app/database"
)

// Generator renders a monitor's stored results as an RSS 2.0 document.
type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{baseURL: strings.TrimRight(baseURL, "/"), version: version}
}

func (g *Generator) Run(monitor database.Monitor, results []database.Result) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	title := fmt.Sprintf("Mentions: %s", monitor.Name)
	selfLink := fmt.Sprintf("%s/monitors/%s/feed", g.baseURL, monitor.Name)

	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", g.describe(monitor), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().UTC()
	if len(results) > 0 {
		lastBuildDate = cmp.Or(results[0].PublishedAt, results[0].CreatedAt, lastBuildDate)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Mention-Comb/%s", g.version), 4)

	for _, result := range results {
		g.writeItem(&buf, result)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) describe(monitor database.Monitor) string {
	switch {
	case monitor.CompanyName != "" && monitor.DiscoveryPrompt != "":
		return fmt.Sprintf("Mentions of %s and content matching: %s", monitor.CompanyName, monitor.DiscoveryPrompt)
	case monitor.CompanyName != "":
		return fmt.Sprintf("Mentions of %s", monitor.CompanyName)
	case monitor.DiscoveryPrompt != "":
		return fmt.Sprintf("Content matching: %s", monitor.DiscoveryPrompt)
	default:
		return fmt.Sprintf("Matches for monitor %s", monitor.Name)
	}
}

func (g *Generator) writeItem(buf *bytes.Buffer, result database.Result) {
	buf.WriteString("    <item>\n")

	guid := cmp.Or(result.GUID, result.Link, result.ContentHash)
	if guid != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
		xml.EscapeText(buf, []byte(guid))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", cmp.Or(result.Title, "(untitled)"), 6)
	g.writeElement(buf, "link", result.Link, 6)
	g.writeElement(buf, "description", g.itemDescription(result), 6)
	g.writeElement(buf, "pubDate", result.PublishedAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", result.Author, 6)

	g.writeElement(buf, "category", result.MatchType, 6)
	if result.Platform != "" {
		g.writeElement(buf, "category", result.Platform, 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) itemDescription(result database.Result) string {
	var parts []string
	if result.Explanation != "" {
		parts = append(parts, result.Explanation)
	}
	if result.Matcher == database.MatcherDiscovery {
		parts = append(parts, fmt.Sprintf("Relevance %.2f", result.RelevanceScore))
	}
	if result.Body != "" {
		parts = append(parts, result.Body)
	}
	return cmp.Or(strings.Join(parts, "\n\n"), "No description available")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
