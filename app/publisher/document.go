package publisher

import (
	"bytes"
	"html/template"
	"time"
)

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="canonical" href="{{.SourceURL}}">
</head>
<body>
<header class="mirror-banner">
<p>Mirrored copy of <a href="{{.SourceURL}}" rel="nofollow noopener">{{.SourceURL}}</a>, captured <time datetime="{{.CapturedAt.Format "2006-01-02T15:04:05Z07:00"}}">{{.CapturedAt.Format "2 Jan 2006 15:04 MST"}}</time>.</p>
</header>
<article>
<h1>{{.Title}}</h1>
{{.Body}}
</article>
</body>
</html>
`))

type documentData struct {
	Title      string
	SourceURL  string
	CapturedAt time.Time
	Body       template.HTML
}

// BuildDocument wraps already sanitized body markup in a standalone page.
func BuildDocument(title, sourceURL, sanitizedBody string, capturedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, documentData{
		Title:      title,
		SourceURL:  sourceURL,
		CapturedAt: capturedAt,
		Body:       template.HTML(sanitizedBody),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
