package content

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	MinTextLength = 50

	structuredLength    = 200
	unconditionalLength = 500
	cleanPageLength     = 150
	structureOnlyLength = 100
)

const structuralElements = "h1, h2, h3, h4, h5, h6, p, article, section, main, ul, ol"

// DefaultKeywords are used when the run configuration names none.
var DefaultKeywords = []string{"comunicado", "discernimento", "nota oficial"}

var errorMarkers = []string{
	"404", "not found", "page not found", "error", "forbidden", "access denied",
	"service unavailable", "não encontrad", "nao encontrad", "erro", "acesso negado",
	"indisponível", "indisponivel",
}

type Verdict struct {
	Valid  bool
	Reason string
}

// Validator screens manually registered pages. It is lenient on purpose:
// a placeholder page slipping through costs less than a real page rejected.
type Validator struct {
	keywords []string
}

func NewValidator(keywords []string) *Validator {
	v := &Validator{}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			v.keywords = append(v.keywords, k)
		}
	}
	if len(v.keywords) == 0 {
		v.keywords = DefaultKeywords
	}
	return v
}

// Validate applies the heuristics in order and stops at the first that
// accepts. document is the sanitized page markup the text came from.
func (v *Validator) Validate(text, document string) Verdict {
	length := utf8.RuneCountInString(strings.TrimSpace(text))
	// Short text is rejected even when it carries a keyword; a keyword hit
	// on a stub page is not enough to mirror it.
	if length < MinTextLength {
		return Verdict{Reason: fmt.Sprintf("text too short (%d < %d chars)", length, MinTextLength)}
	}

	lower := strings.ToLower(text)
	for _, k := range v.keywords {
		if strings.Contains(lower, k) {
			return Verdict{Valid: true, Reason: fmt.Sprintf("contains keyword %q", k)}
		}
	}

	structured, errorPage := inspect(document)

	switch {
	case length >= structuredLength && structured:
		return Verdict{Valid: true, Reason: "structured content"}
	case length >= unconditionalLength:
		return Verdict{Valid: true, Reason: "long text"}
	case length >= cleanPageLength && !errorPage:
		return Verdict{Valid: true, Reason: "no error markers"}
	case structured && length >= structureOnlyLength:
		return Verdict{Valid: true, Reason: "structured short content"}
	}

	if errorPage {
		return Verdict{Reason: "page looks like an error page"}
	}
	return Verdict{Reason: fmt.Sprintf("insufficient content (%d chars)", length)}
}

// inspect reports whether the document has structural elements and whether
// its title or primary heading reads like an error page.
func inspect(document string) (bool, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return false, false
	}

	structured := doc.Find(structuralElements).Length() > 0

	headline := strings.ToLower(doc.Find("title").First().Text() + " " + doc.Find("h1").First().Text())
	for _, marker := range errorMarkers {
		if strings.Contains(headline, marker) {
			return structured, true
		}
	}

	return structured, false
}
