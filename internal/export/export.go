// Package export turns rendered documents into distributable formats.
//
// Rendered templates are treated as Markdown. Authors may embed raw HTML,
// so the converted output is always passed through a sanitising policy
// before it is written.
package export

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func sanitizer() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Globally()
		p.AllowAttrs("start").OnElements("ol")
		policy = p
	})
	return policy
}

// HTML converts Markdown src into a sanitised HTML fragment.
func HTML(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("export: convert markdown: %w", err)
	}
	return sanitizer().SanitizeBytes(buf.Bytes()), nil
}

var page = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<html lang="{{ lang }}">
<head>
<meta charset="utf-8">
<title>{{ title }}</title>
</head>
<body>
{{ body|safe }}
</body>
</html>
`))

// Page writes a standalone HTML document containing the converted src.
// The title is escaped; an empty lang defaults to "en".
func Page(w io.Writer, title, lang string, src []byte) error {
	body, err := HTML(src)
	if err != nil {
		return err
	}
	if lang == "" {
		lang = "en"
	}
	err = page.ExecuteWriter(pongo2.Context{
		"title": title,
		"lang":  lang,
		"body":  string(body),
	}, w)
	if err != nil {
		return fmt.Errorf("export: write page: %w", err)
	}
	return nil
}
