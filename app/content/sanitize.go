package content

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// meta[http-equiv] covers refresh redirects, which can carry a script URL.
const strippedElements = "script, style, iframe, noscript, object, embed, frame, frameset, meta[http-equiv]"

// Namespaced attributes such as xlink:href are parsed with Key "href".
var urlAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"poster":     true,
	"cite":       true,
	"data":       true,
	"background": true,
	"xlink:href": true,
}

// Sanitize strips executable markup from a page and rewrites relative
// links against base. It returns the whole sanitized document and the inner
// markup of its body.
func Sanitize(data []byte, base *url.URL) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	doc.Find(strippedElements).Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)

		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			switch {
			case strings.HasPrefix(key, "on"):
				continue
			case key == "srcset":
				attr.Val = sanitizeSrcset(base, attr.Val)
				if attr.Val == "" {
					continue
				}
			case urlAttributes[key]:
				if isScriptURL(attr.Val) {
					continue
				}
				attr.Val = absoluteURL(base, attr.Val)
			}
			kept = append(kept, attr)
		}
		node.Attr = kept
	})

	document, err := doc.Html()
	if err != nil {
		return "", "", err
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", "", err
	}

	return document, strings.TrimSpace(body), nil
}

// isScriptURL also catches the whitespace and control characters browsers
// ignore inside a scheme, e.g. "java\tscript:".
func isScriptURL(raw string) bool {
	var b strings.Builder
	for _, r := range raw {
		if r <= ' ' {
			continue
		}
		b.WriteRune(r)
	}
	scheme := strings.ToLower(b.String())
	return strings.HasPrefix(scheme, "javascript:") || strings.HasPrefix(scheme, "vbscript:")
}

// sanitizeSrcset drops script candidates and resolves the rest. Each
// candidate is a URL optionally followed by a width or density descriptor.
func sanitizeSrcset(base *url.URL, raw string) string {
	var candidates []string
	for _, candidate := range strings.Split(raw, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 || isScriptURL(fields[0]) {
			continue
		}
		fields[0] = absoluteURL(base, fields[0])
		candidates = append(candidates, strings.Join(fields, " "))
	}
	return strings.Join(candidates, ", ")
}

func absoluteURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	return base.ResolveReference(ref).String()
}
