package export

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdfchat/internal/chat"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Exporter struct {
	overrideDir string
	cwd         string
	md          goldmark.Markdown
}

// Paths are the files written by one export.
type Paths struct {
	Markdown string
	HTML     string
}

func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{
		overrideDir: strings.TrimSpace(overrideDir),
		cwd:         cwd,
		md:          goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

func (e *Exporter) Export(sessionID string, messages []chat.Message, now time.Time) (Paths, error) {
	dir := e.outputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create export directory: %w", err)
	}

	base := filepath.Join(dir, "pdfchat-"+safeFileName(sessionID))
	body := BuildTranscriptMarkdown(messages)
	md := BuildSessionMarkdown(sessionID, body, now.UTC())

	paths := Paths{Markdown: base + ".md", HTML: base + ".html"}
	if err := os.WriteFile(paths.Markdown, []byte(md), 0o644); err != nil {
		return Paths{}, fmt.Errorf("write markdown export: %w", err)
	}

	page, err := e.RenderHTML(sessionID, md)
	if err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(paths.HTML, []byte(page), 0o644); err != nil {
		return Paths{}, fmt.Errorf("write html export: %w", err)
	}
	return paths, nil
}

// BuildTranscriptMarkdown lays out the transcript with one heading per
// message. Assistant content is already Markdown and is kept as is; blank
// placeholders are skipped.
func BuildTranscriptMarkdown(messages []chat.Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case chat.RoleUser:
			b.WriteString("## You\n\n")
			b.WriteString(quote(content) + "\n\n")
		case chat.RoleAI:
			b.WriteString("## Assistant\n\n")
			b.WriteString(content + "\n\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func BuildSessionMarkdown(sessionID, transcript string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# PDF chat " + safeValue(sessionID) + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) RenderHTML(title, md string) (string, error) {
	var body bytes.Buffer
	if err := e.md.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render html export: %w", err)
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<title>PDF chat " + html.EscapeString(safeValue(title)) + "</title>\n")
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// quote keeps user text literal; questions are plain text, not Markdown.
func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

func (e *Exporter) outputDir() string {
	if e.overrideDir == "" {
		return e.cwd
	}
	if filepath.IsAbs(e.overrideDir) {
		return e.overrideDir
	}
	return filepath.Join(e.cwd, e.overrideDir)
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "session"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
