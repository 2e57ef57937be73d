package session

import (
	"errors"
	"strings"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/routing"
	"github.com/mockcarpool/carpool/internal/suggest"
)

// Reason says why an update was published.
type Reason string

const (
	ReasonText        Reason = "text"
	ReasonFocus       Reason = "focus"
	ReasonSuggestions Reason = "suggestions"
	ReasonSelection   Reason = "selection"
	ReasonResolution  Reason = "resolution"
	ReasonRoute       Reason = "route"
	ReasonReset       Reason = "reset"
)

// event is anything the session loop applies to its state.
type event interface{ eventName() string }

type textChanged struct {
	field FieldID
	text  string
}

type focusChanged struct {
	field   FieldID
	focused bool
}

// suggestionSelected picks suggestion when set, otherwise the shown entry at index.
type suggestionSelected struct {
	field      FieldID
	index      int
	suggestion *suggest.Suggestion
}

type routeRequested struct{}

type resetRequested struct{}

type debounceElapsed struct {
	field FieldID
	gen   uint64
}

type suggestionsReceived struct {
	field FieldID
	gen   uint64
	list  []suggest.Suggestion
}

type suggestionsFailed struct {
	field FieldID
	gen   uint64
	err   error
}

type placeResolved struct {
	field FieldID
	gen   uint64
	place *geocoding.Place
	err   error
}

type joinCompleted struct {
	routeGen uint64
	gens     [2]uint64
	places   [2]*geocoding.Place
	err      error
}

type routeCompleted struct {
	routeGen uint64
	result   *routing.Result
	err      error
}

func (textChanged) eventName() string         { return "text_changed" }
func (focusChanged) eventName() string        { return "focus_changed" }
func (suggestionSelected) eventName() string  { return "suggestion_selected" }
func (routeRequested) eventName() string      { return "route_requested" }
func (resetRequested) eventName() string      { return "reset_requested" }
func (debounceElapsed) eventName() string     { return "debounce_elapsed" }
func (suggestionsReceived) eventName() string { return "suggestions_received" }
func (suggestionsFailed) eventName() string   { return "suggestions_failed" }
func (placeResolved) eventName() string       { return "place_resolved" }
func (joinCompleted) eventName() string       { return "join_completed" }
func (routeCompleted) eventName() string      { return "route_completed" }

// effect is work the loop starts after a transition.
type effect interface{ isEffect() }

type scheduleFetch struct {
	field FieldID
	gen   uint64
}

type cancelFetch struct{ field FieldID }

type startFetch struct {
	field FieldID
	gen   uint64
	text  string
}

type startResolve struct {
	field      FieldID
	gen        uint64
	suggestion suggest.Suggestion
}

type cancelResolve struct{ field FieldID }

type startJoin struct {
	routeGen uint64
	gens     [2]uint64
	queries  [2]string
	reuse    [2]*geocoding.Place
}

type startRoute struct {
	routeGen uint64
	from, to geo.Coordinate
}

type cancelRoute struct{}

func (scheduleFetch) isEffect() {}
func (cancelFetch) isEffect()   {}
func (startFetch) isEffect()    {}
func (startResolve) isEffect()  {}
func (cancelResolve) isEffect() {}
func (startJoin) isEffect()     {}
func (startRoute) isEffect()    {}
func (cancelRoute) isEffect()   {}

// outcome is the result of applying one event.
type outcome struct {
	changed bool
	// stale marks an async result dropped for carrying an old generation.
	stale   bool
	reason  Reason
	effects []effect
	err     error
}

// apply runs one transition. It never blocks and never performs I/O.
func (s *state) apply(ev event) outcome {
	var out outcome
	switch e := ev.(type) {
	case textChanged:
		out = s.onText(e)
	case focusChanged:
		out = s.onFocus(e)
	case suggestionSelected:
		out = s.onSelect(e)
	case routeRequested:
		out = s.onRoute()
	case resetRequested:
		out = s.onReset()
	case debounceElapsed:
		out = s.onDebounce(e)
	case suggestionsReceived:
		out = s.onSuggestions(e)
	case suggestionsFailed:
		out = s.onSuggestionsFailed(e)
	case placeResolved:
		out = s.onResolved(e)
	case joinCompleted:
		out = s.onJoined(e)
	case routeCompleted:
		out = s.onRouted(e)
	}
	if out.changed {
		s.derive()
	}
	return out
}

func (s *state) onText(e textChanged) outcome {
	f := s.field(e.field)
	f.query = e.text
	f.gen++
	f.resolving = false
	s.setActive(e.field)
	s.clearPlace(e.field)
	s.clearFieldError(e.field)
	s.settle()

	out := outcome{changed: true, reason: ReasonText, effects: []effect{cancelResolve{e.field}}}
	if strings.TrimSpace(e.text) == "" {
		f.suggestions = nil
		f.suggestionsGen = 0
		f.issuedGen = 0
		out.effects = append(out.effects, cancelFetch{e.field})
		return out
	}
	// The previous list stays visible until the debounced fetch is issued.
	out.effects = append(out.effects, scheduleFetch{field: e.field, gen: f.gen})
	return out
}

func (s *state) onFocus(e focusChanged) outcome {
	f := s.field(e.field)
	if f.active == e.focused {
		return outcome{}
	}
	if e.focused {
		s.setActive(e.field)
	} else {
		f.active = false
	}
	return outcome{changed: true, reason: ReasonFocus}
}

func (s *state) onSelect(e suggestionSelected) outcome {
	f := s.field(e.field)

	var sg suggest.Suggestion
	switch {
	case e.suggestion != nil:
		sg = *e.suggestion
	case e.index >= 0 && e.index < len(f.suggestions):
		sg = f.suggestions[e.index]
	default:
		return outcome{err: ErrInvalidSuggestion}
	}

	f.query = sg.Title
	f.gen++
	f.suggestions = nil
	f.suggestionsGen = 0
	f.issuedGen = 0
	f.active = false
	f.resolving = true
	s.clearPlace(e.field)
	s.clearFieldError(e.field)
	s.settle()

	return outcome{
		changed: true,
		reason:  ReasonSelection,
		effects: []effect{
			cancelFetch{e.field},
			startResolve{field: e.field, gen: f.gen, suggestion: sg},
		},
	}
}

func (s *state) onRoute() outcome {
	var queries [2]string
	for i := range s.fields {
		queries[i] = geocoding.NormalizeQuery(s.fields[i].query)
	}

	// A new request supersedes whatever pipeline is running.
	s.routeGen++
	s.route = nil

	for i, q := range queries {
		if q == "" {
			s.busy = false
			s.phase = PhaseResolutionFailed
			s.lastError = &Failure{Kind: FailureInvalidInput, Field: Fields[i], Message: MessageMissingLocation}
			return outcome{changed: true, reason: ReasonRoute, effects: []effect{cancelRoute{}}}
		}
	}

	s.busy = true
	s.phase = PhaseResolving
	s.lastError = nil

	join := startJoin{routeGen: s.routeGen, queries: queries}
	effects := make([]effect, 0, 5)
	for i := range s.fields {
		f := &s.fields[i]
		f.active = false
		f.suggestions = nil
		f.suggestionsGen = 0
		f.issuedGen = 0
		effects = append(effects, cancelFetch{Fields[i]})
		if f.place != nil && f.placeGen == f.gen {
			join.reuse[i] = f.place
			continue
		}
		// The join resolves this field by text, so a pending suggestion
		// lookup must not land afterwards.
		if f.resolving {
			f.gen++
			f.resolving = false
		}
		effects = append(effects, cancelResolve{Fields[i]})
	}
	s.pendingGens = s.gens()
	join.gens = s.pendingGens
	effects = append(effects, join)

	return outcome{changed: true, reason: ReasonRoute, effects: effects}
}

func (s *state) onReset() outcome {
	for i := range s.fields {
		s.fields[i] = fieldState{gen: s.fields[i].gen + 1}
	}
	s.routeGen++
	s.pendingGens = [2]uint64{}
	s.busy = false
	s.phase = PhaseIdle
	s.route = nil
	s.lastError = nil

	return outcome{
		changed: true,
		reason:  ReasonReset,
		effects: []effect{
			cancelFetch{FieldStart}, cancelFetch{FieldEnd},
			cancelResolve{FieldStart}, cancelResolve{FieldEnd},
			cancelRoute{},
		},
	}
}

func (s *state) onDebounce(e debounceElapsed) outcome {
	f := s.field(e.field)
	if e.gen != f.gen {
		return outcome{stale: true}
	}
	text := strings.TrimSpace(f.query)
	if text == "" {
		return outcome{}
	}

	f.issuedGen = e.gen
	out := outcome{reason: ReasonSuggestions, effects: []effect{startFetch{field: e.field, gen: e.gen, text: text}}}
	if f.suggestionsGen != e.gen && len(f.suggestions) > 0 {
		f.suggestions = nil
		f.suggestionsGen = 0
		out.changed = true
	}
	return out
}

func (s *state) onSuggestions(e suggestionsReceived) outcome {
	f := s.field(e.field)
	if e.gen != f.gen || e.gen != f.issuedGen {
		return outcome{stale: true}
	}
	f.suggestions = e.list
	f.suggestionsGen = e.gen
	return outcome{changed: true, reason: ReasonSuggestions}
}

func (s *state) onSuggestionsFailed(e suggestionsFailed) outcome {
	f := s.field(e.field)
	if e.gen != f.gen || e.gen != f.issuedGen {
		return outcome{stale: true}
	}
	if len(f.suggestions) == 0 {
		return outcome{}
	}
	f.suggestions = nil
	f.suggestionsGen = 0
	return outcome{changed: true, reason: ReasonSuggestions}
}

func (s *state) onResolved(e placeResolved) outcome {
	f := s.field(e.field)
	if e.gen != f.gen {
		return outcome{stale: true}
	}
	f.resolving = false
	if e.err != nil || e.place == nil {
		s.clearPlace(e.field)
		err := e.err
		if err == nil {
			err = geocoding.ErrNotFound
		}
		s.lastError = resolutionFailure(e.field, err)
		return outcome{changed: true, reason: ReasonResolution}
	}
	if f.place == nil || *f.place != *e.place {
		s.route = nil
		s.settle()
	}
	f.place = e.place
	f.placeGen = e.gen
	return outcome{changed: true, reason: ReasonResolution}
}

func (s *state) onJoined(e joinCompleted) outcome {
	if e.routeGen != s.routeGen {
		return outcome{stale: true}
	}
	if e.gens != s.gens() {
		// A field was edited while resolving; abandon this attempt.
		s.finish(PhaseIdle)
		return outcome{changed: true, stale: true, reason: ReasonRoute}
	}

	for i, p := range e.places {
		if p != nil {
			s.fields[i].place = p
			s.fields[i].placeGen = e.gens[i]
		}
	}

	if e.err != nil {
		field := FieldStart
		var fe *fieldError
		if errors.As(e.err, &fe) {
			field = fe.field
		}
		s.clearPlace(field)
		s.lastError = resolutionFailure(field, e.err)
		s.finish(PhaseResolutionFailed)
		return outcome{changed: true, reason: ReasonRoute}
	}

	s.phase = PhaseRouting
	return outcome{
		changed: true,
		reason:  ReasonResolution,
		effects: []effect{startRoute{
			routeGen: s.routeGen,
			from:     e.places[0].Coordinate,
			to:       e.places[1].Coordinate,
		}},
	}
}

func (s *state) onRouted(e routeCompleted) outcome {
	if e.routeGen != s.routeGen {
		return outcome{stale: true}
	}
	if s.gens() != s.pendingGens || s.fields[0].place == nil || s.fields[1].place == nil {
		s.finish(PhaseIdle)
		return outcome{changed: true, stale: true, reason: ReasonRoute}
	}
	if e.err != nil || e.result == nil {
		s.route = nil
		err := e.err
		if err == nil {
			err = routing.ErrNoRouteFound
		}
		s.lastError = routeFailure(err)
		s.finish(PhaseRouteFailed)
		return outcome{changed: true, reason: ReasonRoute}
	}
	s.route = e.result
	s.finish(PhaseRouteReady)
	return outcome{changed: true, reason: ReasonRoute}
}

// finish ends the in-flight route request.
func (s *state) finish(p Phase) {
	s.busy = false
	s.phase = p
}

// settle returns a terminal phase to idle after an edit.
func (s *state) settle() {
	if !s.phase.InFlight() {
		s.phase = PhaseIdle
	}
}

func (s *state) setActive(f FieldID) {
	for i := range s.fields {
		s.fields[i].active = Fields[i] == f
	}
}

// clearPlace drops a field's place and, with it, the route.
func (s *state) clearPlace(f FieldID) {
	fs := s.field(f)
	fs.place = nil
	fs.placeGen = 0
	s.route = nil
}

func (s *state) clearFieldError(f FieldID) {
	if s.lastError != nil && (s.lastError.Field == f || s.lastError.Field == "") {
		s.lastError = nil
	}
}
