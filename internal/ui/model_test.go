package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"pdfchat/internal/backend"
	"pdfchat/internal/catalog"
	"pdfchat/internal/chat"
	"pdfchat/internal/config"
	"pdfchat/internal/export"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

type fragmentBody struct {
	chunks []string
	tail   error
}

func (b *fragmentBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.tail != nil {
			return 0, b.tail
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *fragmentBody) Close() error { return nil }

type fakeBackend struct {
	fragments []string
	tail      error
	openErr   error
	result    backend.UploadResult
	uploadErr error

	uploads []string
	queries []string
	sources []string
}

func (f *fakeBackend) UploadDocument(_ context.Context, path string) (backend.UploadResult, error) {
	f.uploads = append(f.uploads, path)
	return f.result, f.uploadErr
}

func (f *fakeBackend) StreamAnswer(_ context.Context, question string, opts backend.AskOptions) (*backend.Stream, error) {
	f.queries = append(f.queries, question)
	f.sources = append(f.sources, opts.Source)
	if f.openErr != nil {
		return nil, f.openErr
	}
	chunks := append([]string(nil), f.fragments...)
	return backend.NewStream(&fragmentBody{chunks: chunks, tail: f.tail}), nil
}

type fakeStore struct {
	docs []catalog.Document
}

func (s *fakeStore) Record(_ context.Context, d catalog.Document) error {
	s.docs = append([]catalog.Document{d}, s.docs...)
	return nil
}

func (s *fakeStore) List(_ context.Context, _ int) ([]catalog.Document, error) {
	return append([]catalog.Document(nil), s.docs...), nil
}

type fakeExporter struct {
	got []chat.Message
}

func (e *fakeExporter) Export(_ string, msgs []chat.Message, _ time.Time) (export.Paths, error) {
	e.got = msgs
	return export.Paths{Markdown: "/tmp/pdfchat-s.md", HTML: "/tmp/pdfchat-s.html"}, nil
}

func newTestModel(cfg config.AppConfig, be *fakeBackend) Model {
	if cfg.GlamourStyle == "" {
		cfg.GlamourStyle = "notty"
	}
	return NewModel(cfg, Deps{
		Backend:   be,
		Documents: &fakeStore{},
		Exporter:  &fakeExporter{},
		SessionID: "3f2c9a10-0000-4000-8000-000000000000",
		ServerURL: "http://127.0.0.1:8000",
	})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return out, cmd
}

func typeAndSend(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	return update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

// drain applies one fragment at a time until the stream ends.
func drain(t *testing.T, m Model, opened tea.Cmd) Model {
	t.Helper()
	m, _ = update(t, m, opened())
	for i := 0; i < 100; i++ {
		if m.stream == nil {
			return m
		}
		msg := nextFragmentCmd(m.stream, m.ask.Generation)()
		m, _ = update(t, m, msg)
		switch msg.(type) {
		case streamClosedMsg, streamErrMsg:
			return m
		}
	}
	t.Fatalf("stream did not terminate")
	return m
}

func TestSubmit_BlankInputIsIgnored(t *testing.T) {
	be := &fakeBackend{}
	m := newTestModel(config.AppConfig{}, be)

	m, cmd := typeAndSend(t, m, "   ")
	if cmd != nil {
		t.Fatalf("blank submit should not schedule work")
	}
	if m.ask.Transcript.Len() != 0 {
		t.Fatalf("transcript should stay empty, got %d", m.ask.Transcript.Len())
	}
	if m.input.Value() != "   " {
		t.Fatalf("input should be unchanged, got %q", m.input.Value())
	}
	if m.ask.Generating() {
		t.Fatalf("indicator should stay hidden")
	}
}

func TestSubmit_AppendsPlaceholderAndClearsInput(t *testing.T) {
	be := &fakeBackend{}
	m := newTestModel(config.AppConfig{}, be)

	m, cmd := typeAndSend(t, m, "  What is in the report?  ")
	if cmd == nil {
		t.Fatalf("expected stream open command")
	}
	if m.ask.Transcript.Len() != 2 {
		t.Fatalf("expected user + placeholder, got %d", m.ask.Transcript.Len())
	}
	user, ai := m.ask.Transcript.At(0), m.ask.Transcript.At(1)
	if user.Role != chat.RoleUser || user.Content != "What is in the report?" {
		t.Fatalf("unexpected user message %#v", user)
	}
	if ai.Role != chat.RoleAI || ai.Content != "" {
		t.Fatalf("unexpected placeholder %#v", ai)
	}
	if m.input.Value() != "" || !m.ask.Generating() {
		t.Fatalf("input should clear and indicator show: %q %v", m.input.Value(), m.ask.Generating())
	}
	if len(be.queries) != 0 {
		t.Fatalf("network call must happen in the command, not in Update")
	}

	m, cmd = typeAndSend(t, m, "Another one")
	if cmd != nil || m.ask.Transcript.Len() != 2 {
		t.Fatalf("second submit while streaming should be ignored")
	}
}

func TestAsk_EndToEnd(t *testing.T) {
	be := &fakeBackend{fragments: []string{"The report", " covers Q3 results."}}
	m := newTestModel(config.AppConfig{Source: "report.pdf"}, be)

	m, cmd := typeAndSend(t, m, "What is in the report?")
	m = drain(t, m, cmd)

	if got := m.ask.Transcript.At(1).Content; got != "The report covers Q3 results." {
		t.Fatalf("unexpected answer %q", got)
	}
	if m.ask.Generating() || m.ask.Stalled {
		t.Fatalf("indicator should hide when the server closes")
	}
	if len(be.queries) != 1 || be.queries[0] != "What is in the report?" {
		t.Fatalf("unexpected queries %#v", be.queries)
	}
	if be.sources[0] != "report.pdf" {
		t.Fatalf("source filter not forwarded: %#v", be.sources)
	}
	if answer, ok := m.ask.Transcript.LastAnswer(); !ok || answer != "The report covers Q3 results." {
		t.Fatalf("unexpected last answer %q", answer)
	}
}

func TestAsk_StreamErrorStalls(t *testing.T) {
	reset := errors.New("connection reset by peer")
	be := &fakeBackend{fragments: []string{"partial"}, tail: reset}
	m := newTestModel(config.AppConfig{}, be)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, cmd := typeAndSend(t, m, "Summarize")
	m = drain(t, m, cmd)

	if !m.ask.Generating() || !m.ask.Stalled {
		t.Fatalf("indicator should stay visible after a stream error")
	}
	if !errors.Is(m.err, reset) {
		t.Fatalf("expected stream error in status, got %v", m.err)
	}
	if got := m.ask.Transcript.At(1).Content; got != "partial" {
		t.Fatalf("received text should be kept, got %q", got)
	}
	view := ansi.Strip(m.View())
	if !strings.Contains(view, generatingText) || !strings.Contains(view, "[stalled]") {
		t.Fatalf("view should show the stalled indicator:\n%s", view)
	}

	m, cmd = typeAndSend(t, m, "Try again")
	if cmd == nil || m.ask.Transcript.Len() != 4 {
		t.Fatalf("a new question should be accepted after a stall")
	}
}

func TestAsk_OpenErrorStalls(t *testing.T) {
	be := &fakeBackend{openErr: backend.ErrStreamFailed}
	m := newTestModel(config.AppConfig{}, be)

	m, cmd := typeAndSend(t, m, "Hello")
	m, _ = update(t, m, cmd())
	if !m.ask.Stalled || !errors.Is(m.err, backend.ErrStreamFailed) {
		t.Fatalf("open error should stall the ask: %v", m.err)
	}
	if m.ask.Transcript.At(1).Content != "" {
		t.Fatalf("placeholder should be left as is")
	}
}

func TestAsk_StaleGenerationIsDropped(t *testing.T) {
	be := &fakeBackend{}
	m := newTestModel(config.AppConfig{}, be)
	m, _ = typeAndSend(t, m, "First")
	m, _ = update(t, m, streamErrMsg{gen: 1, err: errors.New("boom")})
	m, _ = typeAndSend(t, m, "Second")

	m, _ = update(t, m, fragmentMsg{gen: 1, text: "late"})
	m, _ = update(t, m, streamClosedMsg{gen: 1})
	if m.ask.Transcript.At(3).Content != "" || !m.ask.Generating() {
		t.Fatalf("messages from an abandoned stream must be ignored")
	}
}

func TestRender_ThrottleFlushesOnTick(t *testing.T) {
	be := &fakeBackend{}
	m := newTestModel(config.AppConfig{RenderInterval: time.Hour}, be)
	m, cmd := typeAndSend(t, m, "Question")
	m, _ = update(t, m, cmd())
	gen := m.ask.Generation

	m, _ = update(t, m, fragmentMsg{gen: gen, text: "one"})
	if m.dirty {
		t.Fatalf("first fragment should render immediately")
	}
	m, _ = update(t, m, fragmentMsg{gen: gen, text: " two"})
	if !m.dirty || !m.flushPending {
		t.Fatalf("second fragment should wait for the flush tick")
	}
	if got := m.ask.Transcript.At(1).Content; got != "one two" {
		t.Fatalf("transcript must not be coalesced, got %q", got)
	}
	m, _ = update(t, m, renderTickMsg{})
	if m.dirty || m.flushPending {
		t.Fatalf("tick should flush the pending render")
	}
}

func TestUpload_WithoutFileShowsPrompt(t *testing.T) {
	be := &fakeBackend{}
	m := newTestModel(config.AppConfig{}, be)
	m.upload.Status = "✅ old.pdf uploaded (3 chunks)"

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlU})
	if cmd != nil || len(be.uploads) != 0 {
		t.Fatalf("no upload should be attempted without a file")
	}
	if m.prompt != chat.NoFilePrompt {
		t.Fatalf("expected prompt, got %q", m.prompt)
	}
	if m.upload.Status != "✅ old.pdf uploaded (3 chunks)" {
		t.Fatalf("status should be unchanged, got %q", m.upload.Status)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if m.prompt != "" || m.input.Value() != "" {
		t.Fatalf("key should only dismiss the prompt: %q %q", m.prompt, m.input.Value())
	}
}

func TestUpload_OutcomeOverwritesStatus(t *testing.T) {
	be := &fakeBackend{result: backend.UploadResult{File: "report.pdf", ChunksAdded: 12}}
	m := newTestModel(config.AppConfig{File: "testdata/report.pdf"}, be)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlU})
	if cmd == nil || m.upload.Phase != chat.Uploading {
		t.Fatalf("expected upload to start")
	}
	m, record := update(t, m, cmd())
	if m.upload.Status != "✅ report.pdf uploaded (12 chunks)" {
		t.Fatalf("unexpected status %q", m.upload.Status)
	}
	if len(be.uploads) != 1 || be.uploads[0] != "testdata/report.pdf" {
		t.Fatalf("unexpected uploads %#v", be.uploads)
	}
	m, _ = update(t, m, record())
	if len(m.documents) != 1 || m.documents[0].File != "report.pdf" {
		t.Fatalf("upload should be catalogued, got %#v", m.documents)
	}

	m, _ = update(t, m, uploadMsg{path: "testdata/report.pdf", err: backend.ErrUploadFailed})
	if m.upload.Status != chat.UploadFailedStatus || m.upload.Phase != chat.UploadFailed {
		t.Fatalf("failure should overwrite status, got %q", m.upload.Status)
	}
}

func TestSource_CyclesThroughDocuments(t *testing.T) {
	m := newTestModel(config.AppConfig{}, &fakeBackend{})
	m, _ = update(t, m, documentsMsg{docs: []catalog.Document{{File: "b.pdf"}, {File: "a.pdf"}}})

	var got []string
	for i := 0; i < 4; i++ {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
		got = append(got, m.source)
	}
	want := []string{"b.pdf", "a.pdf", "", "b.pdf"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected source cycle %#v", got)
		}
	}
}

func TestCopyAndExport(t *testing.T) {
	be := &fakeBackend{fragments: []string{"**42**"}}
	m := newTestModel(config.AppConfig{}, be)
	var copied string
	m.copyText = func(_ context.Context, text string) error {
		copied = text
		return nil
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if cmd != nil || m.status != "Nothing to copy yet" {
		t.Fatalf("copy without answer should only set status")
	}

	m, cmd = typeAndSend(t, m, "Answer?")
	m = drain(t, m, cmd)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	m, _ = update(t, m, cmd())
	if copied != "**42**" || m.status != "Copied answer to clipboard" {
		t.Fatalf("unexpected copy result %q %q", copied, m.status)
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	m, _ = update(t, m, cmd())
	exp := m.exporter.(*fakeExporter)
	if len(exp.got) != 2 || !strings.HasPrefix(m.status, "Exported: ") {
		t.Fatalf("unexpected export %#v %q", exp.got, m.status)
	}
}

func TestView_ShowsTranscriptAndIndicator(t *testing.T) {
	be := &fakeBackend{}
	m := newTestModel(config.AppConfig{File: "report.pdf"}, be)
	if m.View() != "Starting..." {
		t.Fatalf("view before size should be the placeholder")
	}
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, cmd := typeAndSend(t, m, "What is in the report?")
	m, _ = update(t, m, cmd())
	m, _ = update(t, m, fragmentMsg{gen: m.ask.Generation, text: "The report covers Q3 results."})

	view := ansi.Strip(m.View())
	for _, want := range []string{appTitle, "File: report.pdf", "What is in the report?", "Q3 results", generatingText} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	m, _ = update(t, m, streamClosedMsg{gen: m.ask.Generation})
	if strings.Contains(ansi.Strip(m.View()), generatingText) {
		t.Fatalf("indicator should hide after close")
	}
}

func TestUpload_FailureCauseStaysOffScreen(t *testing.T) {
	m := newTestModel(config.AppConfig{File: "doc.pdf"}, &fakeBackend{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 30})

	causes := []error{
		fmt.Errorf("%w: open /x/doc.pdf: %w", backend.ErrUploadFailed, os.ErrNotExist),
		fmt.Errorf("%w: 500 Internal Server Error", backend.ErrUploadFailed),
		fmt.Errorf("%w: dial tcp 127.0.0.1:8000: connect: connection refused", backend.ErrUploadFailed),
	}
	var lines []string
	for _, cause := range causes {
		next, _ := update(t, m, uploadMsg{path: "doc.pdf", err: cause})
		if next.upload.Status != chat.UploadFailedStatus {
			t.Fatalf("unexpected upload status %q", next.upload.Status)
		}
		lines = append(lines, ansi.Strip(next.View()))
	}
	for i := 1; i < len(lines); i++ {
		if lines[i] != lines[0] {
			t.Fatalf("failures should render identically:\n%s\n---\n%s", lines[0], lines[i])
		}
	}
	for _, leak := range []string{"500", "connection refused", "does not exist"} {
		if strings.Contains(lines[0], leak) {
			t.Fatalf("view leaks failure cause %q:\n%s", leak, lines[0])
		}
	}
}

func TestUpload_NoBackendDoesNotStart(t *testing.T) {
	m := NewModel(config.AppConfig{File: "doc.pdf", GlamourStyle: "notty"}, Deps{})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlU})
	if cmd != nil || m.upload.Phase != chat.UploadIdle {
		t.Fatalf("upload should not start without a backend, phase=%v", m.upload.Phase)
	}
}

func TestSource_StatusShowsCatalogDetails(t *testing.T) {
	m := newTestModel(config.AppConfig{}, &fakeBackend{})
	doc := catalog.Document{File: "report.pdf", Chunks: 12, UploadedAt: 1_700_000_000}
	m, _ = update(t, m, documentsMsg{docs: []catalog.Document{doc}})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	want := "Source: report.pdf (12 chunks, uploaded " + catalog.FormatUnix(doc.UploadedAt) + ")"
	if m.status != want {
		t.Fatalf("got %q want %q", m.status, want)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if m.status != "Source: all documents" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestPicker_AcceptsUppercaseExtension(t *testing.T) {
	m := newTestModel(config.AppConfig{}, &fakeBackend{})
	var lower, upper bool
	for _, ext := range m.picker.AllowedTypes {
		lower = lower || ext == ".pdf"
		upper = upper || ext == ".PDF"
	}
	if !lower || !upper {
		t.Fatalf("unexpected allowed types %#v", m.picker.AllowedTypes)
	}
}

func TestView_FileLineFitsWidth(t *testing.T) {
	long := strings.Repeat("quarterly-financial-report-", 6) + ".pdf"
	m := newTestModel(config.AppConfig{File: long}, &fakeBackend{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 40, Height: 30})
	if w := ansi.StringWidth(m.fileLine()); w > 40 {
		t.Fatalf("file line is %d cells wide, want <= 40", w)
	}
}
