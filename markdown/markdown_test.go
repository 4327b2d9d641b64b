package markdown

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func render(t *testing.T, input string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, input); err != nil {
		t.Fatalf("RenderMarkdown(%q): %v", input, err)
	}
	return buf.String()
}

func TestRenderMarkdownInline(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"**bold**", "<p><strong>bold</strong></p>\n"},
		{"*italic*", "<p><em>italic</em></p>\n"},
		{"~~gone~~", "<p><del>gone</del></p>\n"},
		{"`code`", "<p><code>code</code></p>\n"},
		{"line one\nline two", "<p>line one<br>\nline two</p>\n"},
	}
	for _, tt := range tests {
		if got := render(t, tt.input); got != tt.expected {
			t.Errorf("RenderMarkdown(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRenderMarkdownHeadingIDs(t *testing.T) {
	got := render(t, "# Hello World")
	if got != "<h1 id=\"hello-world\">Hello World</h1>\n" {
		t.Errorf("unexpected heading: %q", got)
	}
}

func TestRenderMarkdownCodeBlockWithLanguage(t *testing.T) {
	got := render(t, "```go\nfmt.Println(1 < 2)\n```")
	if !strings.Contains(got, `<code class="language-go">`) {
		t.Errorf("missing language class: %q", got)
	}
	if !strings.Contains(got, "1 &lt; 2") {
		t.Errorf("code not escaped: %q", got)
	}
}

func TestRenderMarkdownTable(t *testing.T) {
	got := render(t, "| a | b |\n|---|---|\n| 1 | 2 |")
	for _, want := range []string{"<table>", "<th>a</th>", "<td>2</td>"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output %q missing %q", got, want)
		}
	}
}

func TestRenderMarkdownDropsRawHTML(t *testing.T) {
	got := render(t, "<script>alert(1)</script>")
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML was rendered: %q", got)
	}
}

func TestPreviewEscapesTitle(t *testing.T) {
	var buf bytes.Buffer
	if err := Preview("Fish & <Chips>", "Body").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	want := "<h1>Fish &amp; &lt;Chips&gt;</h1>\n<p>Body</p>\n"
	if buf.String() != want {
		t.Errorf("Preview = %q, want %q", buf.String(), want)
	}
}

func TestPreviewWithoutTitle(t *testing.T) {
	var buf bytes.Buffer
	if err := Preview("", "Body").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "<p>Body</p>\n" {
		t.Errorf("Preview = %q", buf.String())
	}
}
