package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS or Atom document. gofeed is tried first; when it rejects
// the document the entries are pulled out by tag matching instead, so broken
// markup elsewhere in the feed does not lose every entry.
func (p *Parser) Run(data []byte) ([]Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("feed body is empty")
	}

	var items []Item
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err == nil {
		items = make([]Item, 0, len(parsed.Items))
		for _, item := range parsed.Items {
			items = append(items, p.normalizeItem(item))
		}
	} else {
		slog.Debug("Strict feed parse failed, using tolerant extraction", "atom", IsAtom(data), "error", err)
		items, err = p.looseParse(data)
		if err != nil {
			return nil, err
		}
	}

	return p.dropInvalid(items), nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	return Item{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		PublishedAt: cmp.Or(item.Published, item.Updated),
		Summary:     cmp.Or(strings.TrimSpace(item.Description), strings.TrimSpace(item.Content)),
	}
}

func (p *Parser) dropInvalid(items []Item) []Item {
	valid := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Title == "" {
			slog.Warn("Dropping feed entry without title", "link", item.Link)
			continue
		}
		if !IsHTTPURL(item.Link) {
			slog.Warn("Dropping feed entry with invalid link", "title", item.Title, "link", item.Link)
			continue
		}
		valid = append(valid, item)
	}
	return valid
}

var (
	atomRootExpr  = regexp.MustCompile(`(?is)^\s*(<\?xml[^>]*>\s*)?(<!--.*?-->\s*)*<feed[\s>]`)
	atomNSExpr    = regexp.MustCompile(`xmlns(:\w+)?\s*=\s*["']http://www\.w3\.org/2005/Atom["']`)
	rssRootExpr   = regexp.MustCompile(`(?i)<rss[\s>]`)
	rssItemExpr   = regexp.MustCompile(`(?is)<item\b[^>]*>(.*?)</item>`)
	atomEntryExpr = regexp.MustCompile(`(?is)<entry\b[^>]*>(.*?)</entry>`)
	atomLinkExpr  = regexp.MustCompile(`(?is)<link\b([^>]*)/?>`)
	hrefExpr      = regexp.MustCompile(`(?is)\bhref\s*=\s*["']([^"']+)["']`)
	relExpr       = regexp.MustCompile(`(?is)\brel\s*=\s*["']([^"']+)["']`)
	cdataExpr     = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	tagExpr       = regexp.MustCompile(`(?s)<[^>]+>`)

	tagExprs = map[string]*regexp.Regexp{}
)

func init() {
	for _, name := range []string{"title", "link", "pubDate", "dc:date", "published", "updated", "description", "summary", "content", "content:encoded"} {
		tagExprs[name] = regexp.MustCompile(`(?is)<` + regexp.QuoteMeta(name) + `\b[^>]*>(.*?)</` + regexp.QuoteMeta(name) + `>`)
	}
}

// IsAtom reports whether the document looks like an Atom feed, by its root
// element or the Atom namespace on a non-RSS document.
func IsAtom(data []byte) bool {
	if atomRootExpr.Match(data) {
		return true
	}
	return atomNSExpr.Match(data) && !rssRootExpr.Match(data)
}

func (p *Parser) looseParse(data []byte) ([]Item, error) {
	doc := string(data)

	if IsAtom(data) {
		blocks := atomEntryExpr.FindAllStringSubmatch(doc, -1)
		if len(blocks) == 0 {
			return nil, fmt.Errorf("failed to parse feed: no atom entries found")
		}
		items := make([]Item, 0, len(blocks))
		for _, block := range blocks {
			items = append(items, Item{
				Title:       stripTags(tagContent(block[1], "title")),
				Link:        atomLink(block[1]),
				PublishedAt: cmp.Or(tagContent(block[1], "published"), tagContent(block[1], "updated")),
				Summary:     cmp.Or(tagContent(block[1], "summary"), tagContent(block[1], "content")),
			})
		}
		return items, nil
	}

	blocks := rssItemExpr.FindAllStringSubmatch(doc, -1)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("failed to parse feed: no rss items found")
	}
	items := make([]Item, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, Item{
			Title:       stripTags(tagContent(block[1], "title")),
			Link:        tagContent(block[1], "link"),
			PublishedAt: cmp.Or(tagContent(block[1], "pubDate"), tagContent(block[1], "dc:date")),
			Summary:     cmp.Or(tagContent(block[1], "description"), tagContent(block[1], "content:encoded")),
		})
	}
	return items, nil
}

func tagContent(block, name string) string {
	m := tagExprs[name].FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return decodeText(m[1])
}

// atomLink prefers rel="alternate" (or no rel) over other link relations.
func atomLink(block string) string {
	var fallback string
	for _, m := range atomLinkExpr.FindAllStringSubmatch(block, -1) {
		href := hrefExpr.FindStringSubmatch(m[1])
		if href == nil {
			continue
		}
		rel := relExpr.FindStringSubmatch(m[1])
		if rel == nil || strings.EqualFold(rel[1], "alternate") {
			return html.UnescapeString(strings.TrimSpace(href[1]))
		}
		if fallback == "" {
			fallback = html.UnescapeString(strings.TrimSpace(href[1]))
		}
	}
	return fallback
}

func decodeText(s string) string {
	s = cdataExpr.ReplaceAllString(s, "$1")
	return strings.TrimSpace(html.UnescapeString(s))
}

func stripTags(s string) string {
	return strings.Join(strings.Fields(tagExpr.ReplaceAllString(s, " ")), " ")
}
