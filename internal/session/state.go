package session

import (
	"fmt"

	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/mapstate"
	"github.com/mockcarpool/carpool/internal/routing"
	"github.com/mockcarpool/carpool/internal/suggest"
)

// Phase is the route lifecycle of a session.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseResolving        Phase = "resolving"
	PhaseRouting          Phase = "routing"
	PhaseRouteReady       Phase = "route_ready"
	PhaseRouteFailed      Phase = "route_failed"
	PhaseResolutionFailed Phase = "resolution_failed"
)

// InFlight reports whether a route request is being worked on.
func (p Phase) InFlight() bool {
	return p == PhaseResolving || p == PhaseRouting
}

// fieldState is owned by the session loop.
type fieldState struct {
	query string
	// gen is bumped on every text change, selection and reset. Async
	// results carry the gen they were issued for and are dropped on mismatch.
	gen uint64

	place    *geocoding.Place
	placeGen uint64

	// issuedGen is the gen of the last suggestion fetch sent to the provider.
	issuedGen      uint64
	suggestions    []suggest.Suggestion
	suggestionsGen uint64

	active    bool
	resolving bool
}

type state struct {
	fields [2]fieldState

	routeGen    uint64
	pendingGens [2]uint64

	phase     Phase
	busy      bool
	route     *routing.Result
	lastError *Failure

	view mapstate.View
}

func newState() state {
	s := state{phase: PhaseIdle}
	s.derive()
	return s
}

func (s *state) field(f FieldID) *fieldState {
	return &s.fields[f.index()]
}

func (s *state) gens() [2]uint64 {
	return [2]uint64{s.fields[0].gen, s.fields[1].gen}
}

func (s *state) derive() {
	s.view = mapstate.Derive(mapstate.Input{
		Start: s.fields[0].place,
		End:   s.fields[1].place,
		Route: s.route,
	})
}

// checkInvariants validates the state after a transition.
func (s *state) checkInvariants() error {
	active := 0
	for i := range s.fields {
		f := &s.fields[i]
		if f.active {
			active++
		}
		if len(f.suggestions) > 0 && f.suggestionsGen != f.issuedGen {
			return fmt.Errorf("%s: suggestions from gen %d shown after gen %d was issued", Fields[i], f.suggestionsGen, f.issuedGen)
		}
		if f.place != nil && f.placeGen != f.gen {
			return fmt.Errorf("%s: place from gen %d kept at gen %d", Fields[i], f.placeGen, f.gen)
		}
	}
	if active > 1 {
		return fmt.Errorf("%d fields active", active)
	}
	if s.route != nil && (s.fields[0].place == nil || s.fields[1].place == nil) {
		return fmt.Errorf("route present without both places")
	}
	if len(s.view.Overlay) > 0 && s.route == nil {
		return fmt.Errorf("overlay present without a route")
	}
	if s.busy != s.phase.InFlight() {
		return fmt.Errorf("busy=%t in phase %s", s.busy, s.phase)
	}
	return nil
}

// FieldView is the published state of one field.
type FieldView struct {
	Query       string               `json:"query"`
	Place       *geocoding.Place     `json:"place,omitempty"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Active      bool                 `json:"active"`
	Resolving   bool                 `json:"resolving"`
	Generation  uint64               `json:"generation"`
}

// RouteView is a computed route with its display strings.
type RouteView struct {
	*routing.Result
	Distance   string `json:"distance"`
	TravelTime string `json:"travelTime"`
}

// Snapshot is an immutable copy of a session's state. Callers must not modify it.
type Snapshot struct {
	Version   uint64        `json:"version"`
	Start     FieldView     `json:"start"`
	End       FieldView     `json:"end"`
	Phase     Phase         `json:"phase"`
	Busy      bool          `json:"busy"`
	Route     *RouteView    `json:"route,omitempty"`
	LastError *Failure      `json:"lastError,omitempty"`
	Map       mapstate.View `json:"map"`
}

// Field returns the view of f.
func (s *Snapshot) Field(f FieldID) FieldView {
	if f == FieldEnd {
		return s.End
	}
	return s.Start
}

func (s *state) snapshot(version uint64) *Snapshot {
	snap := &Snapshot{
		Version:   version,
		Start:     s.fields[0].view(),
		End:       s.fields[1].view(),
		Phase:     s.phase,
		Busy:      s.busy,
		LastError: s.lastError,
		Map:       s.view,
	}
	if s.route != nil {
		snap.Route = &RouteView{
			Result:     s.route,
			Distance:   s.route.Distance(),
			TravelTime: s.route.TravelTime(),
		}
	}
	return snap
}

func (f *fieldState) view() FieldView {
	list := f.suggestions
	if list == nil {
		list = []suggest.Suggestion{}
	}
	return FieldView{
		Query:       f.query,
		Place:       f.place,
		Suggestions: list,
		Active:      f.active,
		Resolving:   f.resolving,
		Generation:  f.gen,
	}
}
