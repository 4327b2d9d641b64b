// Package markdown renders post bodies to HTML as templ components for the
// editor's live preview.
package markdown

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	engine     goldmark.Markdown
	engineOnce sync.Once
)

func md() goldmark.Markdown {
	engineOnce.Do(func() {
		engine = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			// Without html.WithUnsafe raw HTML is left out of the preview.
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return engine
}

// Markdown returns a templ.Component that renders content as HTML.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		if err := RenderMarkdown(&buf, content); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// RenderMarkdown writes the HTML representation of content to buf.
func RenderMarkdown(buf *bytes.Buffer, content string) error {
	return md().Convert([]byte(content), buf)
}

// Preview renders a post preview: the title as a heading followed by the
// body.
func Preview(title, content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if title != "" {
			if _, err := io.WriteString(w, "<h1>"+templ.EscapeString(title)+"</h1>\n"); err != nil {
				return err
			}
		}
		return Markdown(content).Render(ctx, w)
	})
}
