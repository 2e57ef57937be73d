package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/routing"
	"github.com/mockcarpool/carpool/internal/suggest"
)

// Resolver turns free text or an accepted suggestion into a place.
type Resolver interface {
	Resolve(ctx context.Context, text string) (*geocoding.Place, error)
	ResolveSuggestion(ctx context.Context, s suggest.Suggestion) (*geocoding.Place, error)
}

// RouteCalculator computes a driving route between two coordinates.
type RouteCalculator interface {
	ComputeRoute(ctx context.Context, from, to geo.Coordinate) (*routing.Result, error)
}

// Config configures a session.
type Config struct {
	Suggester  Suggester
	Resolver   Resolver
	Calculator RouteCalculator

	// Debounce is the quiet period before a suggestion fetch is issued. Default: 300ms
	Debounce time.Duration

	// ResolveTimeout bounds each place resolution. Default: 10 seconds
	ResolveTimeout time.Duration

	// SubscriberBuffer is the per-subscriber update queue. Default: 16
	SubscriberBuffer int

	Metrics Metrics
	Logger  zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 10 * time.Second
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 16
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
}

// Update is published to subscribers after every state change.
type Update struct {
	Reason   Reason
	Snapshot *Snapshot
}

type message struct {
	ev    event
	reply chan reply
}

type reply struct {
	snap *Snapshot
	err  error
}

// Session owns the state of one route search. All state changes happen on a
// single goroutine; public methods hand it commands and wait for the result.
type Session struct {
	id     string
	cfg    Config
	logger zerolog.Logger

	inbox     chan message
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	snap       atomic.Pointer[Snapshot]
	lastActive atomic.Int64

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
	closed bool

	// Owned by the loop goroutine.
	state         state
	version       uint64
	ac            *autocomplete
	resolveCancel [2]context.CancelFunc
	routeCancel   context.CancelFunc
}

// New starts a session. Close releases it.
func New(id string, cfg Config) *Session {
	cfg.setDefaults()
	base, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:         id,
		cfg:        cfg,
		logger:     cfg.Logger.With().Str("session_id", id).Logger(),
		inbox:      make(chan message, 64),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		base:       base,
		cancelBase: cancel,
		subs:       make(map[int]chan Update),
		state:      newState(),
	}
	s.ac = &autocomplete{
		suggester: cfg.Suggester,
		debounce:  cfg.Debounce,
		base:      base,
		post:      s.post,
		spawn:     s.spawn,
		metrics:   cfg.Metrics,
		logger:    s.logger,
	}
	s.snap.Store(s.state.snapshot(0))
	s.touch()
	cfg.Metrics.SessionOpened()

	go s.loop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the latest published state.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// LastActive returns when a command was last received.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// SetText records new text for a field and schedules a debounced suggestion fetch.
// Whitespace-only text clears the suggestions immediately.
func (s *Session) SetText(ctx context.Context, f FieldID, text string) (*Snapshot, error) {
	if !f.Valid() {
		return nil, ErrUnknownField
	}
	return s.dispatch(ctx, textChanged{field: f, text: text})
}

// Focus marks a field as active or inactive. Activating one field deactivates the other.
func (s *Session) Focus(ctx context.Context, f FieldID, focused bool) (*Snapshot, error) {
	if !f.Valid() {
		return nil, ErrUnknownField
	}
	return s.dispatch(ctx, focusChanged{field: f, focused: focused})
}

// SelectSuggestion accepts the suggestion currently shown at index.
func (s *Session) SelectSuggestion(ctx context.Context, f FieldID, index int) (*Snapshot, error) {
	if !f.Valid() {
		return nil, ErrUnknownField
	}
	return s.dispatch(ctx, suggestionSelected{field: f, index: index})
}

// AcceptSuggestion accepts sg for a field, whether or not it is currently shown.
func (s *Session) AcceptSuggestion(ctx context.Context, f FieldID, sg suggest.Suggestion) (*Snapshot, error) {
	if !f.Valid() {
		return nil, ErrUnknownField
	}
	return s.dispatch(ctx, suggestionSelected{field: f, suggestion: &sg})
}

// RequestRoute resolves both fields concurrently and computes the route between them.
// It returns once the request is accepted; progress is published to subscribers.
func (s *Session) RequestRoute(ctx context.Context) (*Snapshot, error) {
	return s.dispatch(ctx, routeRequested{})
}

// Reset clears both fields, the route and any error.
func (s *Session) Reset(ctx context.Context) (*Snapshot, error) {
	return s.dispatch(ctx, resetRequested{})
}

// Subscribe returns a channel of updates and a function that ends the subscription.
// A slow subscriber loses its oldest queued updates. The channel is closed when
// the subscription ends or the session closes.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, s.cfg.SubscriberBuffer)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close stops the session, cancels in-flight work and waits for it to finish.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancelBase()
		<-s.loopDone
		s.wg.Wait()

		s.subMu.Lock()
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()

		s.cfg.Metrics.SessionClosed()
		s.logger.Debug().Msg("session closed")
	})
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) dispatch(ctx context.Context, ev event) (*Snapshot, error) {
	s.touch()
	ch := make(chan reply, 1)
	select {
	case s.inbox <- message{ev: ev, reply: ch}:
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-ch:
		return r.snap, r.err
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

// post delivers an async result to the loop, or drops it once the session is closed.
func (s *Session) post(ev event) {
	select {
	case s.inbox <- message{ev: ev}:
	case <-s.done:
	}
}

// spawn runs fn as tracked background work. Only the loop calls it.
func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) loop() {
	defer close(s.loopDone)
	defer s.stopWork()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.inbox:
			s.handle(msg)
		}
	}
}

func (s *Session) handle(msg message) {
	out := s.state.apply(msg.ev)

	if err := s.state.checkInvariants(); err != nil {
		s.logger.Error().Err(err).Str("event", msg.ev.eventName()).Msg("session invariant violated")
	}
	if out.stale {
		s.cfg.Metrics.StaleDropped(msg.ev.eventName())
		s.logger.Debug().Str("event", msg.ev.eventName()).Msg("dropped stale result")
	}
	s.observe(msg.ev, out)

	if out.changed {
		s.version++
		snap := s.state.snapshot(s.version)
		s.snap.Store(snap)
		s.publish(Update{Reason: out.reason, Snapshot: snap})
	}

	for _, eff := range out.effects {
		s.run(eff)
	}

	if msg.reply != nil {
		msg.reply <- reply{snap: s.snap.Load(), err: out.err}
	}
}

// observe logs and counts the end of route requests.
func (s *Session) observe(ev event, out outcome) {
	if !out.changed || out.reason != ReasonRoute || s.state.busy {
		return
	}
	var result string
	switch {
	case out.stale:
		result = "abandoned"
	case s.state.phase == PhaseRouteReady:
		result = "ready"
	case s.state.lastError != nil:
		result = string(s.state.lastError.Kind)
	default:
		return
	}
	s.cfg.Metrics.RouteCompleted(result)

	var l *zerolog.Event
	if s.state.lastError != nil {
		l = s.logger.Warn().Str("failure", s.state.lastError.Error())
	} else {
		l = s.logger.Info()
	}
	l.Str("event", ev.eventName()).Str("outcome", result).Uint64("route_gen", s.state.routeGen).Msg("route request finished")
}

func (s *Session) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		// Full: drop the oldest queued update and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) run(eff effect) {
	switch e := eff.(type) {
	case scheduleFetch:
		s.ac.schedule(e.field, e.gen)
	case cancelFetch:
		s.ac.cancel(e.field)
	case startFetch:
		s.ac.fetch(e.field, e.gen, e.text)
	case startResolve:
		s.resolve(e)
	case cancelResolve:
		if c := s.resolveCancel[e.field.index()]; c != nil {
			c()
			s.resolveCancel[e.field.index()] = nil
		}
	case startJoin:
		s.join(e)
	case startRoute:
		s.computeRoute(e)
	case cancelRoute:
		if s.routeCancel != nil {
			s.routeCancel()
			s.routeCancel = nil
		}
	}
}

func (s *Session) resolve(e startResolve) {
	i := e.field.index()
	if c := s.resolveCancel[i]; c != nil {
		c()
	}
	ctx, cancel := context.WithTimeout(s.base, s.cfg.ResolveTimeout)
	s.resolveCancel[i] = cancel

	s.spawn(func() {
		defer cancel()
		place, err := s.cfg.Resolver.ResolveSuggestion(ctx, e.suggestion)
		if errors.Is(err, context.Canceled) {
			return
		}
		s.post(placeResolved{field: e.field, gen: e.gen, place: place, err: err})
	})
}

// join resolves both fields concurrently. The first failure cancels the other
// lookup and is reported with its field.
func (s *Session) join(e startJoin) {
	ctx := s.pipeline()

	s.spawn(func() {
		var places [2]*geocoding.Place
		g, gctx := errgroup.WithContext(ctx)
		for i, f := range Fields {
			if e.reuse[i] != nil {
				places[i] = e.reuse[i]
				continue
			}
			g.Go(func() error {
				rctx, cancel := context.WithTimeout(gctx, s.cfg.ResolveTimeout)
				defer cancel()
				p, err := s.cfg.Resolver.Resolve(rctx, e.queries[i])
				if err != nil {
					return &fieldError{field: f, err: err}
				}
				places[i] = p
				return nil
			})
		}
		err := g.Wait()
		if ctx.Err() != nil {
			return
		}
		s.post(joinCompleted{routeGen: e.routeGen, gens: e.gens, places: places, err: err})
	})
}

func (s *Session) computeRoute(e startRoute) {
	ctx := s.pipeline()

	s.spawn(func() {
		result, err := s.cfg.Calculator.ComputeRoute(ctx, e.from, e.to)
		if ctx.Err() != nil {
			return
		}
		s.post(routeCompleted{routeGen: e.routeGen, result: result, err: err})
	})
}

// pipeline replaces the context of the running route request.
func (s *Session) pipeline() context.Context {
	if s.routeCancel != nil {
		s.routeCancel()
	}
	ctx, cancel := context.WithCancel(s.base)
	s.routeCancel = cancel
	return ctx
}

func (s *Session) stopWork() {
	s.ac.stop()
	for i, c := range s.resolveCancel {
		if c != nil {
			c()
			s.resolveCancel[i] = nil
		}
	}
	if s.routeCancel != nil {
		s.routeCancel()
		s.routeCancel = nil
	}
}
