package content

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ExtractText returns the page title and its readable text. Readability is
// tried first; pages it cannot make sense of fall back to the body text.
func ExtractText(document string, pageURL *url.URL) (string, string) {
	var title, text string

	article, err := readability.FromReader(strings.NewReader(document), pageURL)
	if err != nil {
		slog.Debug("Readability extraction failed", "url", pageURL.String(), "error", err)
	} else {
		title = strings.TrimSpace(article.Title)
		text = collapseSpace(article.TextContent)
	}

	if text == "" || title == "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
		if err != nil {
			return title, text
		}
		title = cmp.Or(title, collapseSpace(doc.Find("title").First().Text()))
		text = cmp.Or(text, collapseSpace(doc.Find("body").Text()))
	}

	return title, text
}

// Hash fingerprints the readable text of a page. Whitespace differences do
// not change it.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(collapseSpace(text)))
	return hex.EncodeToString(sum[:])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
