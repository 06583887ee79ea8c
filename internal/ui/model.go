package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pdfchat/internal/backend"
	"pdfchat/internal/catalog"
	"pdfchat/internal/chat"
	"pdfchat/internal/clipboard"
	"pdfchat/internal/config"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/time/rate"
)

// Deps are the collaborators the model drives. Documents and Exporter may
// be nil, in which case the related keys do nothing.
type Deps struct {
	Backend   Backend
	Documents DocumentStore
	Exporter  Exporter
	Logger    *slog.Logger
	SessionID string
	ServerURL string
}

type Model struct {
	cfg       config.AppConfig
	backend   Backend
	docs      DocumentStore
	exporter  Exporter
	logger    *slog.Logger
	sessionID string
	serverURL string
	copyText  func(context.Context, string) error

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	picker   filepicker.Model
	help     help.Model
	keys     keyMap

	width  int
	height int

	ask       chat.Ask
	upload    chat.Upload
	stream    *backend.Stream
	documents []catalog.Document
	source    string
	picking   bool
	prompt    string

	renderer      *glamour.TermRenderer
	rendererWidth int
	// rendered caches finished messages by index. The live answer is
	// rendered on every refresh.
	rendered     []string
	limiter      *rate.Limiter
	flushPending bool
	dirty        bool

	status string
	err    error
}

func NewModel(cfg config.AppConfig, deps Deps) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask something from uploaded PDFs…"
	ti.Prompt = "› "
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(60, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Points

	fp := filepicker.New()
	fp.AllowedTypes = []string{".pdf", ".PDF"}
	fp.AutoHeight = true
	if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}

	h := help.New()
	h.ShowAll = false

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := Model{
		cfg:       cfg,
		backend:   deps.Backend,
		docs:      deps.Documents,
		exporter:  deps.Exporter,
		logger:    logger,
		sessionID: deps.SessionID,
		serverURL: deps.ServerURL,
		copyText:  clipboard.Copy,

		input:    ti,
		viewport: vp,
		spinner:  sp,
		picker:   fp,
		help:     h,
		keys:     defaultKeys(),

		source: cfg.Source,
	}
	if cfg.RenderInterval > 0 {
		m.limiter = rate.NewLimiter(rate.Every(cfg.RenderInterval), 1)
	}
	if cfg.File != "" {
		m.upload.Select(cfg.File)
	}
	m.refreshViewport()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.loadDocumentsCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case uploadMsg:
		return m.applyUpload(msg)

	case documentsMsg:
		if msg.err != nil {
			m.err = msg.err
			m.logger.Warn("document catalog", "err", msg.err)
			return m, nil
		}
		m.documents = msg.docs
		return m, nil

	case streamOpenedMsg:
		if msg.gen != m.ask.Generation {
			_ = msg.stream.Close()
			return m, nil
		}
		m.stream = msg.stream
		return m, nextFragmentCmd(msg.stream, msg.gen)

	case fragmentMsg:
		if msg.gen != m.ask.Generation || m.stream == nil {
			return m, nil
		}
		m.ask.Receive(msg.text)
		render := m.scheduleRender()
		return m, tea.Batch(render, nextFragmentCmd(m.stream, msg.gen))

	case streamClosedMsg:
		if msg.gen != m.ask.Generation {
			return m, nil
		}
		m.ask.Finish()
		m.stream = nil
		m.logger.Debug("stream closed", "generation", msg.gen)
		m.refreshViewport()
		return m, nil

	case streamErrMsg:
		if msg.gen != m.ask.Generation {
			return m, nil
		}
		m.ask.Receive(msg.text)
		m.ask.Stall(msg.err)
		m.stream = nil
		m.err = msg.err
		m.status = "Answer stream failed"
		m.logger.Error("answer stream failed", "generation", msg.gen, "err", msg.err)
		m.refreshViewport()
		return m, nil

	case renderTickMsg:
		m.flushPending = false
		if m.dirty {
			m.refreshViewport()
		}
		return m, nil

	case exportMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Export failed: " + msg.err.Error()
			m.logger.Error("export transcript", "err", msg.err)
		} else {
			m.status = "Exported: " + msg.paths.Markdown
			m.logger.Info("exported transcript", "markdown", msg.paths.Markdown, "html", msg.paths.HTML)
		}
		return m, nil

	case copyMsg:
		if msg.err != nil {
			m.err = msg.err
			if errors.Is(msg.err, clipboard.ErrToolNotFound) {
				m.status = "Could not copy: clipboard tool not found"
			} else {
				m.status = "Could not copy: " + msg.err.Error()
			}
		} else {
			m.status = "Copied answer to clipboard"
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			if m.stream != nil {
				_ = m.stream.Close()
			}
			return m, tea.Quit
		}
		if m.prompt != "" {
			m.prompt = ""
			return m, nil
		}
		if m.picking {
			return m.updatePicker(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Send):
			return m.submit()
		case key.Matches(msg, m.keys.ChooseFile):
			m.picking = true
			return m, m.picker.Init()
		case key.Matches(msg, m.keys.Upload):
			return m.beginUpload()
		case key.Matches(msg, m.keys.CycleSource):
			m.source = nextSource(m.source, m.documents)
			m.status = "Source: " + describeSource(m.source, m.documents)
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			answer, ok := m.ask.Transcript.LastAnswer()
			if !ok {
				m.status = "Nothing to copy yet"
				return m, nil
			}
			return m, m.copyCmd(answer)
		case key.Matches(msg, m.keys.Export):
			if m.ask.Transcript.Len() == 0 {
				m.status = "Nothing to export yet"
				return m, nil
			}
			return m, m.exportCmd()
		case key.Matches(msg, m.keys.PageUp):
			m.viewport.HalfViewUp()
			return m, nil
		case key.Matches(msg, m.keys.PageDown):
			m.viewport.HalfViewDown()
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	default:
		if m.picking {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			cmds = append(cmds, cmd)
		} else {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Cancel) {
		m.picking = false
		return m, nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.upload.Select(path)
		m.picking = false
		m.status = "Selected " + m.upload.SelectedName()
		m.logger.Debug("selected file", "path", path)
	}
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.backend == nil {
		return m, nil
	}
	question, ok := m.ask.Submit(m.input.Value())
	if !ok {
		return m, nil
	}
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
	m.input.SetValue("")
	m.err = nil
	m.logger.Info("question submitted", "generation", m.ask.Generation, "source", m.source, "chars", len(question))
	m.refreshViewport()
	return m, m.openStreamCmd(question, m.ask.Generation)
}

func (m Model) beginUpload() (tea.Model, tea.Cmd) {
	if m.backend == nil {
		return m, nil
	}
	path, err := m.upload.Begin()
	if err != nil {
		m.prompt = chat.NoFilePrompt
		return m, nil
	}
	m.logger.Info("uploading document", "path", path)
	return m, m.uploadCmd(path)
}

func (m Model) applyUpload(msg uploadMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		// The cause goes to the log only. Every failure looks the same on screen.
		m.upload.Fail()
		m.logger.Error("upload failed", "path", msg.path, "err", msg.err)
		return m, nil
	}
	file := msg.res.File
	if file == "" {
		file = filepath.Base(msg.path)
	}
	m.upload.Succeed(file, msg.res.ChunksAdded)
	m.logger.Info("upload succeeded", "file", file, "chunks", msg.res.ChunksAdded)

	abs, err := filepath.Abs(msg.path)
	if err != nil {
		abs = msg.path
	}
	return m, m.recordDocumentCmd(catalog.Document{
		File:   file,
		Chunks: msg.res.ChunksAdded,
		Path:   abs,
	})
}

// scheduleRender redraws now when the limiter allows it and otherwise
// arranges one flush tick for the pending change.
func (m *Model) scheduleRender() tea.Cmd {
	if m.limiter == nil || m.limiter.Allow() {
		m.refreshViewport()
		return nil
	}
	m.dirty = true
	if m.flushPending {
		return nil
	}
	m.flushPending = true
	return tea.Tick(m.cfg.RenderInterval, func(time.Time) tea.Msg {
		return renderTickMsg{}
	})
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	bodyHeight := m.height - chromeHeight
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	m.viewport.Width = width
	m.viewport.Height = bodyHeight
	m.input.Width = m.width - 4
	m.help.Width = m.width

	if width != m.rendererWidth {
		m.renderer = nil
		m.rendered = nil
	}
	m.refreshViewport()
}

func nextSource(current string, docs []catalog.Document) string {
	options := make([]string, 0, len(docs)+1)
	options = append(options, "")
	for _, d := range docs {
		options = append(options, d.File)
	}
	for i, opt := range options {
		if opt == current {
			return options[(i+1)%len(options)]
		}
	}
	return ""
}

// describeSource adds the catalogued chunk count and upload time when the
// source is a known document.
func describeSource(source string, docs []catalog.Document) string {
	if source == "" {
		return sourceLabel(source)
	}
	for _, d := range docs {
		if d.File == source {
			return fmt.Sprintf("%s (%d chunks, uploaded %s)", d.File, d.Chunks, catalog.FormatUnix(d.UploadedAt))
		}
	}
	return source
}

func sourceLabel(source string) string {
	if source == "" {
		return "all documents"
	}
	return source
}
