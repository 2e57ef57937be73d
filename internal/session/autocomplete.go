package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/suggest"
)

// Suggester streams autocomplete suggestions for a partial query.
type Suggester interface {
	Stream(ctx context.Context, text string, onUpdate func([]suggest.Suggestion)) error
}

// autocomplete debounces keystrokes and runs at most one suggestion fetch per field.
// It is only touched from the session loop.
type autocomplete struct {
	suggester Suggester
	debounce  time.Duration
	base      context.Context
	post      func(event)
	spawn     func(func())
	metrics   Metrics
	logger    zerolog.Logger

	timers  [2]*time.Timer
	cancels [2]context.CancelFunc
}

// schedule supersedes any pending or in-flight fetch and arms the debounce timer.
func (a *autocomplete) schedule(f FieldID, gen uint64) {
	a.cancel(f)
	a.timers[f.index()] = time.AfterFunc(a.debounce, func() {
		a.post(debounceElapsed{field: f, gen: gen})
	})
}

// cancel stops the timer and the in-flight fetch for f.
func (a *autocomplete) cancel(f FieldID) {
	i := f.index()
	if t := a.timers[i]; t != nil {
		t.Stop()
		a.timers[i] = nil
	}
	if c := a.cancels[i]; c != nil {
		c()
		a.cancels[i] = nil
	}
}

func (a *autocomplete) fetch(f FieldID, gen uint64, text string) {
	i := f.index()
	if c := a.cancels[i]; c != nil {
		c()
	}
	ctx, cancel := context.WithCancel(a.base)
	a.cancels[i] = cancel
	a.metrics.SuggestionRequested(string(f))

	a.spawn(func() {
		defer cancel()
		err := a.suggester.Stream(ctx, text, func(list []suggest.Suggestion) {
			a.post(suggestionsReceived{field: f, gen: gen, list: list})
		})
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		a.logger.Debug().Err(err).Str("field", string(f)).Msg("suggestion fetch failed")
		a.post(suggestionsFailed{field: f, gen: gen, err: err})
	})
}

func (a *autocomplete) stop() {
	for _, f := range Fields {
		a.cancel(f)
	}
}
