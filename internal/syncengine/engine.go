// Package syncengine keeps a client-side mirror of a user's sources and of
// the messages of the one source currently being viewed.
//
// Responses are applied in completion order, with one exception: a message
// list is applied only if it was fetched for the source that is active when
// it arrives, and only if no newer fetch has already been applied. A slow
// fetch for a source the user has switched away from is discarded, and so
// is its error.
//
// Clearing the session starts a new epoch. Responses to requests issued in
// an earlier epoch never touch the state.
package syncengine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"inboxsync/internal/domain"
)

const (
	DefaultPollInterval = 5 * time.Second

	defaultSourceName  = "Welcome Chat"
	defaultSourceToken = "local"
)

var ErrEmptyContent = errors.New("message content is empty")

// API is the server surface the engine synchronizes against.
type API interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	CreateSource(ctx context.Context, name string, typ domain.SourceType, token string) (domain.Source, error)
	ListMessages(ctx context.Context, sourceID string) ([]domain.Message, error)
	PostMessage(ctx context.Context, content, sourceID, platform string) (domain.Message, error)
}

// Session is the authenticated session the engine polls on behalf of.
type Session interface {
	Token() string
	Changes() (<-chan struct{}, func())
}

// State is what the presentation layer renders.
type State struct {
	Sources        []domain.Source
	Messages       []domain.Message
	ActiveSourceID string
	Loading        bool
	Error          string
}

type Engine struct {
	api      API
	session  Session
	interval time.Duration

	mu         sync.Mutex
	state      State
	epoch      uint64
	generation uint64
	applied    uint64
	inflight   int
	subs       []chan struct{}

	reschedule chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
}

func New(api API, session Session, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Engine{
		api:        api,
		session:    session,
		interval:   interval,
		reschedule: make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	s.Sources = append([]domain.Source(nil), e.state.Sources...)
	s.Messages = append([]domain.Message(nil), e.state.Messages...)
	return s
}

// Subscribe returns a channel that receives after each state change.
// Notifications coalesce when the reader falls behind.
func (e *Engine) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

func (e *Engine) ClearError() {
	e.update(func(s *State) { s.Error = "" })
}

// RefreshSources replaces the local source list with the server's.
func (e *Engine) RefreshSources(ctx context.Context) error {
	return e.refreshSources(ctx, e.currentEpoch())
}

func (e *Engine) refreshSources(ctx context.Context, epoch uint64) error {
	sources, err := e.api.ListSources(ctx)
	if err != nil {
		e.fail(epoch, "fetch sources", err)
		return err
	}

	e.commit(epoch, func(s *State) {
		s.Sources = sources
		s.Error = ""
	})
	return nil
}

// Select makes sourceID the active source, moves polling onto it and
// fetches its messages.
func (e *Engine) Select(ctx context.Context, sourceID string) error {
	return e.RefreshMessages(ctx, sourceID)
}

// RefreshMessages fetches the messages of sourceID, which becomes the
// active source, and replaces the local list with them unless a newer
// fetch or a switch to another source overtook this one. An overtaken
// fetch still returns its error but leaves the error slot alone.
func (e *Engine) RefreshMessages(ctx context.Context, sourceID string) error {
	return e.refreshMessages(ctx, sourceID, e.currentEpoch())
}

func (e *Engine) refreshMessages(ctx context.Context, sourceID string, epoch uint64) error {
	var switched bool

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return nil
	}
	e.generation++
	gen := e.generation
	if e.state.ActiveSourceID != sourceID {
		e.state.ActiveSourceID = sourceID
		e.state.Messages = nil
		switched = true
	}
	e.inflight++
	e.state.Loading = true
	e.mu.Unlock()
	e.notify()

	if switched {
		select {
		case e.reschedule <- struct{}{}:
		default:
		}
	}

	messages, err := e.api.ListMessages(ctx, sourceID)

	e.mu.Lock()
	current := epoch == e.epoch
	if current {
		e.inflight--
		e.state.Loading = e.inflight > 0
	}
	stale := !current || sourceID != e.state.ActiveSourceID || gen < e.applied
	if !stale {
		if err != nil {
			e.state.Error = err.Error()
		} else {
			e.state.Messages = messages
			e.state.Error = ""
			e.applied = gen
		}
	}
	e.mu.Unlock()
	e.notify()

	if err != nil {
		if !stale {
			log.Printf("[ERROR] fetch messages: %v", err)
		}
		return err
	}
	return nil
}

// Send posts content and appends the server's record to the local list.
// Nothing changes locally when the post fails.
func (e *Engine) Send(ctx context.Context, content, sourceID, platform string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrEmptyContent
	}

	epoch := e.currentEpoch()

	msg, err := e.api.PostMessage(ctx, content, sourceID, platform)
	if err != nil {
		e.fail(epoch, "send message", err)
		return domain.Message{}, err
	}

	e.commit(epoch, func(s *State) {
		if s.ActiveSourceID == sourceID && !hasMessage(s.Messages, msg.ID) {
			s.Messages = append(s.Messages, msg)
		}
		for i := range s.Sources {
			if s.Sources[i].ID == sourceID {
				s.Sources[i].LastMessage = content
			}
		}
		s.Error = ""
	})
	return msg, nil
}

// AddSource registers a new source and returns it for immediate selection.
func (e *Engine) AddSource(ctx context.Context, name string, typ domain.SourceType, token string) (domain.Source, error) {
	return e.addSource(ctx, name, typ, token, e.currentEpoch())
}

func (e *Engine) addSource(ctx context.Context, name string, typ domain.SourceType, token string, epoch uint64) (domain.Source, error) {
	src, err := e.api.CreateSource(ctx, name, typ, token)
	if err != nil {
		e.fail(epoch, "add source", err)
		return domain.Source{}, err
	}

	e.commit(epoch, func(s *State) {
		if !hasSource(s.Sources, src.ID) {
			s.Sources = append(s.Sources, src)
		}
		s.Error = ""
	})
	return src, nil
}

// Bootstrap loads the source list and provisions a local welcome source
// when the user has none. The empty-list check is the only guard, so two
// concurrent bootstraps can both provision.
func (e *Engine) Bootstrap(ctx context.Context) error {
	epoch := e.currentEpoch()
	if err := e.refreshSources(ctx, epoch); err != nil {
		return err
	}

	e.mu.Lock()
	provision := epoch == e.epoch && len(e.state.Sources) == 0
	e.mu.Unlock()
	if !provision {
		return nil
	}

	_, err := e.addSource(ctx, defaultSourceName, domain.SourceLocal, defaultSourceToken, epoch)
	return err
}

// Run polls the active source every interval until ctx is done, Stop is
// called or the session is cleared. With no active source the first source
// is polled. A tick does not wait for the previous poll to finish.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var changes <-chan struct{}
	if e.session != nil {
		var unwatch func()
		changes, unwatch = e.session.Changes()
		defer unwatch()

		if e.session.Token() == "" {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-changes:
			if e.session.Token() == "" {
				e.reset()
				return
			}
		case <-e.reschedule:
			ticker.Reset(e.interval)
		case <-ticker.C:
			if id, epoch := e.pollTarget(); id != "" {
				go e.refreshMessages(ctx, id, epoch)
			}
		}
	}
}

// Stop ends Run. Fetches already in flight still complete.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) pollTarget() (string, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.ActiveSourceID != "" {
		return e.state.ActiveSourceID, e.epoch
	}
	if len(e.state.Sources) > 0 {
		return e.state.Sources[0].ID, e.epoch
	}
	return "", e.epoch
}

func (e *Engine) currentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// reset drops all state and starts a new epoch.
func (e *Engine) reset() {
	e.mu.Lock()
	e.epoch++
	e.inflight = 0
	e.state = State{}
	e.mu.Unlock()
	e.notify()
}

// commit applies fn unless the session was reset after epoch was taken.
func (e *Engine) commit(epoch uint64, fn func(s *State)) bool {
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return false
	}
	fn(&e.state)
	e.mu.Unlock()
	e.notify()
	return true
}

func (e *Engine) fail(epoch uint64, op string, err error) {
	if e.commit(epoch, func(s *State) { s.Error = err.Error() }) {
		log.Printf("[ERROR] %s: %v", op, err)
	}
}

func (e *Engine) update(fn func(s *State)) {
	e.mu.Lock()
	fn(&e.state)
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func hasMessage(messages []domain.Message, id string) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func hasSource(sources []domain.Source, id string) bool {
	for _, s := range sources {
		if s.ID == id {
			return true
		}
	}
	return false
}
