package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/mapstate"
	"github.com/mockcarpool/carpool/internal/routing"
	"github.com/mockcarpool/carpool/internal/session"
	"github.com/mockcarpool/carpool/internal/suggest"
)

// MockSession implements Session for testing and records every call.
type MockSession struct {
	mu        sync.Mutex
	calls     []string
	snap      *session.Snapshot
	updates   chan session.Update
	cancelled bool
	err       error
}

func newMockSession() *MockSession {
	return &MockSession{
		snap:    &session.Snapshot{Phase: session.PhaseIdle},
		updates: make(chan session.Update, 4),
	}
}

func (m *MockSession) record(format string, args ...any) (*session.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
	return m.snap, m.err
}

func (m *MockSession) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockSession) Snapshot() *session.Snapshot { return m.snap }

func (m *MockSession) Subscribe() (<-chan session.Update, func()) {
	return m.updates, func() { m.cancelled = true }
}

func (m *MockSession) SetText(_ context.Context, f session.FieldID, text string) (*session.Snapshot, error) {
	return m.record("text %s %q", f, text)
}

func (m *MockSession) Focus(_ context.Context, f session.FieldID, focused bool) (*session.Snapshot, error) {
	return m.record("focus %s %t", f, focused)
}

func (m *MockSession) SelectSuggestion(_ context.Context, f session.FieldID, index int) (*session.Snapshot, error) {
	return m.record("select %s %d", f, index)
}

func (m *MockSession) RequestRoute(context.Context) (*session.Snapshot, error) {
	return m.record("route")
}

func (m *MockSession) Reset(context.Context) (*session.Snapshot, error) {
	return m.record("reset")
}

// run executes cmd and any batched commands, returning the produced messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m *Model, msg tea.Msg) []tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	return run(cmd)
}

func withSuggestions(f session.FieldID, titles ...string) *session.Snapshot {
	list := make([]suggest.Suggestion, 0, len(titles))
	for _, title := range titles {
		list = append(list, suggest.Suggestion{Title: title, Subtitle: "Paris, France"})
	}
	snap := &session.Snapshot{Version: 3, Phase: session.PhaseIdle}
	if f == session.FieldEnd {
		snap.End.Suggestions = list
	} else {
		snap.Start.Suggestions = list
	}
	return snap
}

func TestNew(t *testing.T) {
	mock := newMockSession()
	mock.snap.Start.Query = "Eiffel Tower"

	m := New(context.Background(), mock)

	require.NotNil(t, m)
	assert.Equal(t, session.FieldStart, m.Focused())
	assert.Equal(t, "Eiffel Tower", m.Value(session.FieldStart))
	assert.Equal(t, "", m.Value(session.FieldEnd))
}

func TestTyping_SetsText(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	msgs := press(t, m, keyRunes("L"))

	assert.Empty(t, msgs)
	assert.Equal(t, "L", m.Value(session.FieldStart))
	assert.Equal(t, []string{`text start "L"`}, mock.Calls())
}

func TestTyping_SendsTextInOrder(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	var cmds []tea.Cmd
	for _, r := range "Eiff" {
		_, cmd := m.Update(keyRunes(string(r)))
		cmds = append(cmds, cmd)
	}
	for i := len(cmds) - 1; i >= 0; i-- {
		run(cmds[i])
	}

	assert.Equal(t, []string{`text start "E"`, `text start "Ei"`, `text start "Eif"`, `text start "Eiff"`}, mock.Calls())
}

func TestCommands_ConcurrentRunsKeepOrder(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	var cmds []tea.Cmd
	for _, r := range "Louvre" {
		_, cmd := m.Update(keyRunes(string(r)))
		cmds = append(cmds, cmd)
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	cmds = append(cmds, cmd)

	var wg sync.WaitGroup
	for i := len(cmds) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(c tea.Cmd) {
			defer wg.Done()
			run(c)
		}(cmds[i])
	}
	wg.Wait()

	calls := mock.Calls()
	require.Len(t, calls, 7)
	assert.Equal(t, `text start "Louvre"`, calls[5])
	assert.Equal(t, "route", calls[6])
}

func TestTab_SwitchesField(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, session.FieldEnd, m.Focused())

	press(t, m, keyRunes("x"))
	assert.Equal(t, "x", m.Value(session.FieldEnd))

	press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, session.FieldStart, m.Focused())

	assert.Equal(t, []string{"focus end true", `text end "x"`, "focus start true"}, mock.Calls())
}

func TestSuggestions_NavigateAndAccept(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	m.Update(UpdateMsg{Update: session.Update{
		Reason:   session.ReasonSuggestions,
		Snapshot: withSuggestions(session.FieldStart, "Louvre Museum", "Rue du Louvre"),
	}})

	press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.Cursor())
	press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.Cursor(), "cursor stops at the last suggestion")
	press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.Cursor())

	press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"select start 1"}, mock.Calls())
	assert.Equal(t, 0, m.Cursor())
}

func TestSuggestions_RenderedForFocusedFieldOnly(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	m.Update(UpdateMsg{Update: session.Update{
		Reason:   session.ReasonSuggestions,
		Snapshot: withSuggestions(session.FieldEnd, "Louvre Museum"),
	}})
	assert.NotContains(t, m.View(), "Louvre Museum")

	press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Contains(t, m.View(), "> Louvre Museum, Paris, France")
}

func TestSelectionUpdate_ReplacesInputText(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)
	press(t, m, keyRunes("louv"))

	snap := &session.Snapshot{Version: 5, Phase: session.PhaseIdle}
	snap.Start.Query = "Louvre Museum"
	snap.Start.Resolving = true
	m.Update(UpdateMsg{Update: session.Update{Reason: session.ReasonSelection, Snapshot: snap}})

	assert.Equal(t, "Louvre Museum", m.Value(session.FieldStart))
	assert.Contains(t, m.View(), "resolving")
}

func TestTextUpdate_KeepsTypedText(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)
	press(t, m, keyRunes("lou"))

	snap := &session.Snapshot{Version: 2, Phase: session.PhaseIdle}
	snap.Start.Query = "lo"
	m.Update(UpdateMsg{Update: session.Update{Reason: session.ReasonText, Snapshot: snap}})

	assert.Equal(t, "lou", m.Value(session.FieldStart))
}

func TestEnter_AdvancesThenRoutes(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, session.FieldEnd, m.Focused())

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"focus end true", "route"}, mock.Calls())
}

func TestRouteAndReset(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)
	press(t, m, keyRunes("a"))

	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})

	assert.Equal(t, []string{`text start "a"`, "route", "reset"}, mock.Calls())
	assert.Equal(t, "", m.Value(session.FieldStart))
}

func TestCommandError_ShownInStatus(t *testing.T) {
	mock := newMockSession()
	mock.err = errors.New("session closed")
	m := New(context.Background(), mock)

	msgs := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.Len(t, msgs, 1)

	m.Update(msgs[0])
	assert.Contains(t, m.View(), "session closed")
}

func TestView_RouteSummary(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	start := &geocoding.Place{DisplayName: "Eiffel Tower", Coordinate: geo.Coordinate{Lat: 48.85837, Lon: 2.294481}}
	end := &geocoding.Place{DisplayName: "Louvre Museum", Coordinate: geo.Coordinate{Lat: 48.860611, Lon: 2.337644}}
	result := &routing.Result{
		Polyline:        []geo.Coordinate{start.Coordinate, {Lat: 48.8600, Lon: 2.3100}, end.Coordinate},
		DistanceMeters:  4712.3,
		DurationSeconds: 815.4,
	}
	snap := &session.Snapshot{
		Version: 9,
		Phase:   session.PhaseRouteReady,
		Route:   &session.RouteView{Result: result, Distance: result.Distance(), TravelTime: result.TravelTime()},
		Map:     mapstate.Derive(mapstate.Input{Start: start, End: end, Route: result}),
	}
	snap.Start.Place = start
	snap.End.Place = end

	m.Update(UpdateMsg{Update: session.Update{Reason: session.ReasonRoute, Snapshot: snap}})
	view := m.View()

	assert.Contains(t, view, "4.71 km · 13 min")
	assert.Contains(t, view, "Eiffel Tower (48.85837, 2.29448)")
	assert.Contains(t, view, "Louvre Museum")
	assert.Contains(t, view, "route overlay: 3 points")
	assert.Contains(t, view, "region ")
}

func TestView_LastError(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	snap := &session.Snapshot{
		Version:   4,
		Phase:     session.PhaseResolutionFailed,
		LastError: &session.Failure{Kind: session.FailureNotFound, Field: session.FieldEnd, Message: session.MessageNotFound},
	}
	m.Update(UpdateMsg{Update: session.Update{Reason: session.ReasonRoute, Snapshot: snap}})

	assert.Contains(t, m.View(), "end: location not found")
}

func TestWaitForUpdate(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	snap := &session.Snapshot{Version: 1}
	mock.updates <- session.Update{Reason: session.ReasonText, Snapshot: snap}
	msg := m.waitForUpdate()()
	require.IsType(t, UpdateMsg{}, msg)
	assert.Equal(t, snap, msg.(UpdateMsg).Update.Snapshot)

	close(mock.updates)
	assert.Equal(t, ClosedMsg{}, m.waitForUpdate()())
}

func TestQuit(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	msgs := press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	require.Len(t, msgs, 1)
	assert.Equal(t, tea.QuitMsg{}, msgs[0])
	assert.True(t, mock.cancelled)
}

func TestClosedMsg_Quits(t *testing.T) {
	mock := newMockSession()
	m := New(context.Background(), mock)

	_, cmd := m.Update(ClosedMsg{})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.True(t, mock.cancelled)
}
