package ui

import (
	"context"
	"errors"
	"io"
	"time"

	"pdfchat/internal/backend"
	"pdfchat/internal/catalog"
	"pdfchat/internal/chat"
	"pdfchat/internal/clipboard"
	"pdfchat/internal/export"

	tea "github.com/charmbracelet/bubbletea"
)

// Backend is the retrieval service as seen by the UI.
type Backend interface {
	UploadDocument(ctx context.Context, path string) (backend.UploadResult, error)
	StreamAnswer(ctx context.Context, question string, opts backend.AskOptions) (*backend.Stream, error)
}

type DocumentStore interface {
	Record(ctx context.Context, d catalog.Document) error
	List(ctx context.Context, limit int) ([]catalog.Document, error)
}

type Exporter interface {
	Export(sessionID string, messages []chat.Message, now time.Time) (export.Paths, error)
}

type uploadMsg struct {
	path string
	res  backend.UploadResult
	err  error
}

type documentsMsg struct {
	docs []catalog.Document
	err  error
}

type streamOpenedMsg struct {
	gen    int
	stream *backend.Stream
}

type fragmentMsg struct {
	gen  int
	text string
}

type streamClosedMsg struct {
	gen int
}

// streamErrMsg carries any text read together with the error.
type streamErrMsg struct {
	gen  int
	text string
	err  error
}

type renderTickMsg struct{}

type exportMsg struct {
	paths export.Paths
	err   error
}

type copyMsg struct {
	err error
}

func (m Model) uploadCmd(path string) tea.Cmd {
	svc := m.backend
	return func() tea.Msg {
		res, err := svc.UploadDocument(context.Background(), path)
		return uploadMsg{path: path, res: res, err: err}
	}
}

func (m Model) loadDocumentsCmd() tea.Cmd {
	if m.docs == nil {
		return nil
	}
	docs := m.docs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := docs.List(ctx, 200)
		return documentsMsg{docs: list, err: err}
	}
}

func (m Model) recordDocumentCmd(d catalog.Document) tea.Cmd {
	if m.docs == nil {
		return nil
	}
	docs := m.docs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := docs.Record(ctx, d); err != nil {
			return documentsMsg{err: err}
		}
		list, err := docs.List(ctx, 200)
		return documentsMsg{docs: list, err: err}
	}
}

func (m Model) openStreamCmd(question string, gen int) tea.Cmd {
	svc := m.backend
	opts := backend.AskOptions{Source: m.source}
	return func() tea.Msg {
		s, err := svc.StreamAnswer(context.Background(), question, opts)
		if err != nil {
			return streamErrMsg{gen: gen, err: err}
		}
		return streamOpenedMsg{gen: gen, stream: s}
	}
}

// nextFragmentCmd performs exactly one read. The next read is only
// scheduled after this fragment has been applied.
func nextFragmentCmd(s *backend.Stream, gen int) tea.Cmd {
	return func() tea.Msg {
		text, err := s.Next()
		switch {
		case errors.Is(err, io.EOF):
			return streamClosedMsg{gen: gen}
		case err != nil:
			return streamErrMsg{gen: gen, text: text, err: err}
		}
		return fragmentMsg{gen: gen, text: text}
	}
}

func (m Model) exportCmd() tea.Cmd {
	if m.exporter == nil {
		return nil
	}
	exp := m.exporter
	msgs := m.ask.Transcript.Messages()
	sessionID := m.sessionID
	return func() tea.Msg {
		paths, err := exp.Export(sessionID, msgs, time.Now())
		return exportMsg{paths: paths, err: err}
	}
}

func (m Model) copyCmd(text string) tea.Cmd {
	copyText := m.copyText
	if copyText == nil {
		copyText = clipboard.Copy
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{err: copyText(ctx, text)}
	}
}
