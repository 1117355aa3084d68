package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/visio-labs/visio/internal/db"
	"github.com/visio-labs/visio/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// statusProgress maps record statuses to display percentages. Recognition
// has no measurable progress, so the bar reflects pipeline stages.
var statusProgress = map[models.Status]float64{
	models.StatusPending:    0.15,
	models.StatusProcessing: 0.6,
	models.StatusCompleted:  1.0,
	models.StatusFailed:     1.0,
	models.StatusArchived:   1.0,
}

// tickMsg triggers polling the record status
type tickMsg time.Time

// recordUpdateMsg carries the refreshed record
type recordUpdateMsg struct {
	rec *models.ImageRecord
	err error
}

// progressModel is the bubbletea model for recognition progress.
type progressModel struct {
	db       *db.Client
	imageID  string
	rec      *models.ImageRecord
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(client *db.Client, imageID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		db:       client,
		imageID:  imageID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchRecord(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRecord()

	case recordUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch record: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.rec = msg.rec

		if m.rec.Status.Terminal() {
			m.done = true
			if m.rec.Status == models.StatusFailed {
				m.err = fmt.Errorf("recognition failed")
			}
			return m, tea.Quit
		}

		// Keep polling while the record is live
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.rec == nil {
		return "Loading record...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.rec.Status))
	progressBar := m.progress.ViewAs(statusProgress[m.rec.Status])
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s\n%s\n", status, progressBar, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nRecognition continues in background.\nUse 'visio get %s' to check status.\n", m.imageID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	return m.theme.completedStyle().Render("✓ Recognition completed\n")
}

// fetchRecord reads the current record from the database.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchRecord() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		rec, err := m.db.GetImage(ctx, m.imageID)
		return recordUpdateMsg{rec: rec, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunRecognitionProgress runs the interactive progress UI for one record.
// Returns the final record on success, nil when the user detached, and an
// error when recognition failed.
func RunRecognitionProgress(client *db.Client, imageID string) (*models.ImageRecord, error) {
	model := newProgressModel(client, imageID)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// Ctrl+C detaches; recognition continues server-side
		if m.quitting {
			return nil, nil
		}
		if m.err != nil {
			return m.rec, m.err
		}
		return m.rec, nil
	}

	return nil, nil
}
