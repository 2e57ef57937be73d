// Package tui provides an interactive terminal screen for one route-search
// session: two location inputs with live suggestions, a route summary and a
// textual map summary.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mockcarpool/carpool/internal/session"
)

// Session is the part of a route-search session the screen drives.
// *session.Session satisfies it.
type Session interface {
	Snapshot() *session.Snapshot
	Subscribe() (<-chan session.Update, func())
	SetText(ctx context.Context, f session.FieldID, text string) (*session.Snapshot, error)
	Focus(ctx context.Context, f session.FieldID, focused bool) (*session.Snapshot, error)
	SelectSuggestion(ctx context.Context, f session.FieldID, index int) (*session.Snapshot, error)
	RequestRoute(ctx context.Context) (*session.Snapshot, error)
	Reset(ctx context.Context) (*session.Snapshot, error)
}

// UpdateMsg carries a published session snapshot.
type UpdateMsg struct {
	Update session.Update
}

// ClosedMsg reports that the session stopped publishing.
type ClosedMsg struct{}

// ErrorMsg reports a failed session command.
type ErrorMsg struct {
	Err error
}

// Model is the bubbletea model of the route-search screen.
type Model struct {
	ctx     context.Context
	sess    Session
	keys    KeyMap
	styles  Styles
	help    help.Model
	inputs  [2]textinput.Model
	focus   int
	cursor  int
	snap    *session.Snapshot
	updates <-chan session.Update
	cancel  func()
	err     error
	outbox  *outbox
}

type sessionCall func(ctx context.Context) (*session.Snapshot, error)

// outbox delivers session calls in the order the screen issued them.
// bubbletea runs each command on its own goroutine, so a command drains
// whatever is queued instead of sending only its own call.
type outbox struct {
	mu      sync.Mutex
	pending []sessionCall
	sending sync.Mutex
}

func (o *outbox) push(call sessionCall) {
	o.mu.Lock()
	o.pending = append(o.pending, call)
	o.mu.Unlock()
}

func (o *outbox) pop() sessionCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	call := o.pending[0]
	o.pending = o.pending[1:]
	return call
}

// drain sends queued calls until none remain and returns the first error.
func (o *outbox) drain(ctx context.Context) error {
	o.sending.Lock()
	defer o.sending.Unlock()
	var first error
	for call := o.pop(); call != nil; call = o.pop() {
		if _, err := call(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const (
	inputMargin   = 12
	minInputWidth = 10
)

// New creates the model and subscribes to sess. The subscription ends when the
// program quits.
func New(ctx context.Context, sess Session) *Model {
	m := &Model{
		ctx:    ctx,
		sess:   sess,
		keys:   DefaultKeyMap(),
		styles: DefaultStyles(),
		help:   help.New(),
		snap:   sess.Snapshot(),
		outbox: &outbox{},
	}
	placeholders := [2]string{"Where from?", "Where to?"}
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 256
		ti.Width = 50
		ti.Cursor.SetMode(cursor.CursorStatic)
		ti.SetValue(m.snap.Field(session.Fields[i]).Query)
		m.inputs[i] = ti
	}
	m.inputs[0].Focus()
	m.updates, m.cancel = sess.Subscribe()
	return m
}

// Init starts listening for session updates and focuses the first field.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.focusCmd(session.Fields[0], true))
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		for i := range m.inputs {
			m.inputs[i].Width = max(msg.Width-inputMargin, minInputWidth)
		}
		return m, nil

	case UpdateMsg:
		m.apply(msg.Update)
		return m, m.waitForUpdate()

	case ClosedMsg:
		m.cancel()
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextField):
		return m, m.switchField(1)

	case key.Matches(msg, m.keys.PrevField):
		return m, m.switchField(-1)

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.suggestions())-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Accept):
		return m, m.accept()

	case key.Matches(msg, m.keys.Route):
		m.err = nil
		return m, m.command(func(ctx context.Context) (*session.Snapshot, error) {
			return m.sess.RequestRoute(ctx)
		})

	case key.Matches(msg, m.keys.Reset):
		for i := range m.inputs {
			m.inputs[i].SetValue("")
		}
		m.cursor = 0
		m.err = nil
		return m, m.command(func(ctx context.Context) (*session.Snapshot, error) {
			return m.sess.Reset(ctx)
		})
	}

	before := m.inputs[m.focus].Value()
	var inputCmd tea.Cmd
	m.inputs[m.focus], inputCmd = m.inputs[m.focus].Update(msg)
	text := m.inputs[m.focus].Value()
	if text == before {
		return m, inputCmd
	}

	m.cursor = 0
	field := session.Fields[m.focus]
	return m, tea.Batch(inputCmd, m.command(func(ctx context.Context) (*session.Snapshot, error) {
		return m.sess.SetText(ctx, field, text)
	}))
}

// accept takes the highlighted suggestion. Without suggestions it advances from
// start to end, and from end it requests the route.
func (m *Model) accept() tea.Cmd {
	field := session.Fields[m.focus]
	if len(m.suggestions()) > 0 {
		index := m.cursor
		m.cursor = 0
		return m.command(func(ctx context.Context) (*session.Snapshot, error) {
			return m.sess.SelectSuggestion(ctx, field, index)
		})
	}
	if field == session.FieldStart {
		return m.switchField(1)
	}
	m.err = nil
	return m.command(func(ctx context.Context) (*session.Snapshot, error) {
		return m.sess.RequestRoute(ctx)
	})
}

func (m *Model) switchField(delta int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focus].Focus()
	m.cursor = 0
	return m.focusCmd(session.Fields[m.focus], true)
}

// apply adopts a published snapshot. Inputs are overwritten only when the
// session changed the text itself.
func (m *Model) apply(u session.Update) {
	m.snap = u.Snapshot
	if u.Reason == session.ReasonSelection || u.Reason == session.ReasonReset {
		for i, f := range session.Fields {
			m.inputs[i].SetValue(m.snap.Field(f).Query)
			m.inputs[i].CursorEnd()
		}
	}
	if n := len(m.suggestions()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) suggestions() []string {
	if m.snap == nil {
		return nil
	}
	list := m.snap.Field(session.Fields[m.focus]).Suggestions
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s.Subtitle != "" {
			out = append(out, s.Title+", "+s.Subtitle)
			continue
		}
		out = append(out, s.Title)
	}
	return out
}

func (m *Model) waitForUpdate() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return ClosedMsg{}
		}
		return UpdateMsg{Update: u}
	}
}

func (m *Model) focusCmd(f session.FieldID, focused bool) tea.Cmd {
	return m.command(func(ctx context.Context) (*session.Snapshot, error) {
		return m.sess.Focus(ctx, f, focused)
	})
}

// command queues a session call and returns the command that sends it off the
// update loop. Successful calls produce no message; the resulting snapshot
// arrives through the subscription.
func (m *Model) command(call sessionCall) tea.Cmd {
	m.outbox.push(call)
	ctx, out := m.ctx, m.outbox
	return func() tea.Msg {
		if err := out.drain(ctx); err != nil {
			return ErrorMsg{Err: err}
		}
		return nil
	}
}

// Focused returns the focused field.
func (m *Model) Focused() session.FieldID {
	return session.Fields[m.focus]
}

// Cursor returns the highlighted suggestion index.
func (m *Model) Cursor() int {
	return m.cursor
}

// Value returns the text of a field's input.
func (m *Model) Value(f session.FieldID) string {
	if f == session.FieldEnd {
		return m.inputs[1].Value()
	}
	return m.inputs[0].Value()
}

// View renders the screen.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("carpool route search"))
	b.WriteString("\n")

	labels := [2]string{"From", "To"}
	for i, f := range session.Fields {
		label := m.styles.Label.Render(labels[i])
		if i == m.focus {
			label = m.styles.ActiveLabel.Render(labels[i])
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top, label, m.inputs[i].View())
		if m.snap != nil && m.snap.Field(f).Resolving {
			line += m.styles.Muted.Render("  resolving…")
		}
		b.WriteString(line)
		b.WriteString("\n")
		if i == m.focus {
			for j, s := range m.suggestions() {
				if j == m.cursor {
					b.WriteString(m.styles.Selected.Render("> " + s))
				} else {
					b.WriteString(m.styles.Suggestion.Render(s))
				}
				b.WriteString("\n")
			}
		}
	}

	b.WriteString(m.styles.Panel.Render(m.summary()))
	b.WriteString("\n")
	if status := m.status(); status != "" {
		b.WriteString(status)
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) summary() string {
	if m.snap == nil {
		return m.styles.Muted.Render("no session")
	}
	var lines []string
	if r := m.snap.Route; r != nil {
		lines = append(lines, m.styles.Route.Render(fmt.Sprintf("%s · %s", r.Distance, r.TravelTime)))
	} else {
		lines = append(lines, m.styles.Muted.Render(string(m.snap.Phase)))
	}

	view := m.snap.Map
	for _, a := range view.Annotations {
		lines = append(lines, fmt.Sprintf("%-5s %s (%.5f, %.5f)", a.Role, a.Label, a.Coordinate.Lat, a.Coordinate.Lon))
	}
	if region := view.Region; region != nil {
		lines = append(lines, m.styles.Muted.Render(fmt.Sprintf("region %.4f,%.4f .. %.4f,%.4f",
			region.MinLat, region.MinLon, region.MaxLat, region.MaxLon)))
	}
	if n := len(view.Overlay); n > 0 {
		lines = append(lines, m.styles.Muted.Render(fmt.Sprintf("route overlay: %d points", n)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) status() string {
	switch {
	case m.err != nil:
		return m.styles.Error.Render(m.err.Error())
	case m.snap != nil && m.snap.LastError != nil:
		return m.styles.Error.Render(m.snap.LastError.Error())
	case m.snap != nil && m.snap.Busy:
		return m.styles.Muted.Render(string(m.snap.Phase) + "…")
	}
	return ""
}
