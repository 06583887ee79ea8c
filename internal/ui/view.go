package ui

import (
	"fmt"
	"strings"

	"pdfchat/internal/chat"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	appTitle       = "📄 AI Multi-PDF Chatbot"
	generatingText = "Generating response…"

	// title, file line, upload status, panel border (2), input,
	// indicator, status bar, help.
	chromeHeight = 9
)

// refreshViewport rebuilds the transcript content and scrolls to the
// newest line.
func (m *Model) refreshViewport() {
	m.dirty = false
	if m.ask.Transcript.Len() == 0 {
		m.viewport.SetContent(emptyStyle.Render("Upload a PDF, then ask a question about it."))
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	n := m.ask.Transcript.Len()
	live := -1
	if m.ask.Generating() {
		live = n - 1
	}
	blocks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i < len(m.rendered) && i != live {
			blocks = append(blocks, m.rendered[i])
			continue
		}
		block := m.renderMessage(m.ask.Transcript.At(i))
		if i != live && i == len(m.rendered) {
			m.rendered = append(m.rendered, block)
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg chat.Message) string {
	width := m.viewport.Width
	if msg.Role == chat.RoleUser {
		bubbleWidth := lipgloss.Width(msg.Content) + 2
		if limit := width * 3 / 4; bubbleWidth > limit {
			bubbleWidth = limit
		}
		bubble := userBubbleStyle.Width(bubbleWidth).Render(msg.Content)
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble)
	}

	if strings.TrimSpace(msg.Content) == "" {
		return answerLabelStyle.Render("Assistant") + "\n" + emptyStyle.Render("…")
	}
	body := msg.Content
	if r := m.markdownRenderer(); r != nil {
		if out, err := r.Render(msg.Content); err == nil {
			body = strings.Trim(out, "\n")
		}
	}
	return answerLabelStyle.Render("Assistant") + "\n" + body
}

func (m *Model) markdownRenderer() *glamour.TermRenderer {
	width := m.viewport.Width
	if m.renderer != nil && m.rendererWidth == width {
		return m.renderer
	}
	wrap := width - 2
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.cfg.GlamourStyle),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logger.Warn("markdown renderer", "style", m.cfg.GlamourStyle, "err", err)
		return nil
	}
	m.renderer = r
	m.rendererWidth = width
	return r
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	if m.prompt != "" {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			promptStyle.Render(m.prompt+"\n\n"+hintStyle.Render("press any key")))
	}
	if m.picking {
		header := titleStyle.Render("Choose a PDF") + "  " + hintStyle.Render("enter select · esc cancel")
		return lipgloss.JoinVertical(lipgloss.Left, header, m.picker.View())
	}

	panel := panelStyle.Width(m.width - 2).Render(m.viewport.View())

	indicator := ""
	if m.ask.Generating() {
		indicator = m.spinner.View() + " 💬 " + generatingText
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(appTitle),
		m.fileLine(),
		m.upload.Status,
		panel,
		m.input.View(),
		indicator,
		m.statusLine(),
		m.help.View(m.keys),
	)
}

func (m Model) fileLine() string {
	name := m.upload.SelectedName()
	if name == "" {
		name = hintStyle.Render("no file selected (ctrl+o)")
	}
	line := "File: " + name
	if m.upload.Phase == chat.Uploading {
		line += "  " + m.spinner.View() + " uploading..."
	}
	if m.width > 0 {
		line = ansi.Truncate(line, m.width, "…")
	}
	return line
}

func (m Model) statusLine() string {
	status := fmt.Sprintf(
		"session=%s  server=%s  source=%s  messages=%d",
		shorten(m.sessionID, 8),
		m.serverURL,
		sourceLabel(m.source),
		m.ask.Transcript.Len(),
	)
	if m.ask.Stalled {
		status += "  [stalled]"
	}
	if strings.TrimSpace(m.status) != "" {
		status += "  " + shorten(m.status, 80)
	}
	if m.err != nil {
		status += "  err=" + m.err.Error()
	}
	if m.width > 2 {
		status = ansi.Truncate(status, m.width-2, "…")
	}
	return statusStyle.Render(status)
}

func shorten(s string, n int) string {
	return ansi.Truncate(strings.TrimSpace(s), n, "...")
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	userBubbleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	answerLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("114"))
	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("203")).
			Padding(1, 3)
)
