package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"inboxsync/internal/auth"
	"inboxsync/internal/domain"
)

// fakeAPI serves canned data. ListMessages blocks on gates[sourceID] and
// ListSources on sourcesGate when set, so tests can control completion
// order.
type fakeAPI struct {
	mu          sync.Mutex
	sources     []domain.Source
	messages    map[string][]domain.Message
	gates       map[string]chan struct{}
	sourcesGate chan struct{}
	calls       map[string]int
	sourceCalls int
	created     int
	err         error
	nextID      int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: make(map[string][]domain.Message),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

func (f *fakeAPI) ListSources(ctx context.Context) ([]domain.Source, error) {
	f.mu.Lock()
	f.sourceCalls++
	gate := f.sourcesGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Source(nil), f.sources...), nil
}

func (f *fakeAPI) CreateSource(_ context.Context, name string, typ domain.SourceType, _ string) (domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Source{}, f.err
	}
	f.created++
	src := domain.Source{ID: fmt.Sprintf("src_%d", f.created), Name: name, Type: typ, IsOnline: true}
	f.sources = append(f.sources, src)
	return src, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, sourceID string) ([]domain.Message, error) {
	f.mu.Lock()
	f.calls[sourceID]++
	gate := f.gates[sourceID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Message(nil), f.messages[sourceID]...), nil
}

func (f *fakeAPI) PostMessage(_ context.Context, content, sourceID, platform string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Message{}, f.err
	}
	f.nextID++
	msg := domain.Message{ID: fmt.Sprintf("msg_%d", f.nextID), Content: content, SourceID: sourceID, Platform: platform, IsOwn: true}
	f.messages[sourceID] = append(f.messages[sourceID], msg)
	return msg, nil
}

func (f *fakeAPI) callCount(sourceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[sourceID]
}

func (f *fakeAPI) sourceCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sourceCalls
}

func (f *fakeAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefreshSourcesReplacesWholesale(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "a"}, {ID: "b"}}
	e := New(api, nil, time.Hour)
	ctx := context.Background()

	e.RefreshSources(ctx)
	api.sources = []domain.Source{{ID: "c"}}
	e.RefreshSources(ctx)

	got := e.Snapshot().Sources
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("sources = %+v", got)
	}
}

func TestStaleSourceResponseDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.messages["src_X"] = []domain.Message{{ID: "x1", SourceID: "src_X"}}
	api.messages["src_Y"] = []domain.Message{{ID: "y1", SourceID: "src_Y"}}
	gateX := make(chan struct{})
	api.gates["src_X"] = gateX

	e := New(api, nil, time.Hour)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		e.RefreshMessages(ctx, "src_X")
		close(done)
	}()
	waitFor(t, func() bool { return api.callCount("src_X") == 1 })

	if err := e.RefreshMessages(ctx, "src_Y"); err != nil {
		t.Fatalf("refresh Y: %v", err)
	}

	close(gateX)
	<-done

	s := e.Snapshot()
	if s.ActiveSourceID != "src_Y" {
		t.Errorf("active = %s", s.ActiveSourceID)
	}
	if len(s.Messages) != 1 || s.Messages[0].ID != "y1" {
		t.Errorf("messages = %+v, want src_Y's", s.Messages)
	}
	if s.Loading {
		t.Error("still loading after all fetches returned")
	}
}

func TestOvertakenFetchErrorLeavesSlotAlone(t *testing.T) {
	api := newFakeAPI()
	api.messages["src_Y"] = []domain.Message{{ID: "y1", SourceID: "src_Y"}}
	api.gates["src_X"] = make(chan struct{})

	e := New(api, nil, time.Hour)
	ctxX, cancelX := context.WithCancel(context.Background())
	defer cancelX()

	errX := make(chan error, 1)
	go func() { errX <- e.RefreshMessages(ctxX, "src_X") }()
	waitFor(t, func() bool { return api.callCount("src_X") == 1 })

	if err := e.RefreshMessages(context.Background(), "src_Y"); err != nil {
		t.Fatalf("refresh Y: %v", err)
	}

	cancelX()
	if err := <-errX; !errors.Is(err, context.Canceled) {
		t.Errorf("overtaken fetch returned %v, want context.Canceled", err)
	}

	s := e.Snapshot()
	if s.Error != "" {
		t.Errorf("error slot = %q, want empty", s.Error)
	}
	if s.ActiveSourceID != "src_Y" || len(s.Messages) != 1 {
		t.Errorf("state = %+v", s)
	}
}

func TestOlderFetchForSameSourceDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.messages["s"] = []domain.Message{{ID: "old"}}
	gate := make(chan struct{})
	api.gates["s"] = gate

	e := New(api, nil, time.Hour)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		e.RefreshMessages(ctx, "s")
		close(done)
	}()
	waitFor(t, func() bool { return api.callCount("s") == 1 })

	api.mu.Lock()
	delete(api.gates, "s")
	api.messages["s"] = []domain.Message{{ID: "old"}, {ID: "new"}}
	api.mu.Unlock()

	e.RefreshMessages(ctx, "s")

	// Released last, the first fetch returns the stale view.
	api.mu.Lock()
	api.messages["s"] = []domain.Message{{ID: "old"}}
	api.mu.Unlock()
	close(gate)
	<-done

	if got := e.Snapshot().Messages; len(got) != 2 {
		t.Errorf("older response overwrote newer one: %+v", got)
	}
}

func TestSendAppendsServerRecord(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "s1"}, {ID: "s2"}}
	e := New(api, nil, time.Hour)
	ctx := context.Background()

	e.RefreshSources(ctx)
	e.Select(ctx, "s1")

	msg, err := e.Send(ctx, "hello", "s1", "slack")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	s := e.Snapshot()
	if len(s.Messages) != 1 || s.Messages[0].ID != msg.ID || !s.Messages[0].IsOwn {
		t.Errorf("messages = %+v", s.Messages)
	}
	if s.Sources[0].LastMessage != "hello" || s.Sources[1].LastMessage != "" {
		t.Errorf("sources = %+v", s.Sources)
	}

	// A poll that already includes the sent message must not duplicate it.
	e.RefreshMessages(ctx, "s1")
	e.Send(ctx, "again", "s1", "slack")
	if got := e.Snapshot().Messages; len(got) != 2 {
		t.Errorf("got %d messages, want 2", len(got))
	}
}

func TestSendToInactiveSourceOnlyPatchesSource(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "s1"}, {ID: "s2"}}
	e := New(api, nil, time.Hour)
	ctx := context.Background()

	e.RefreshSources(ctx)
	e.Select(ctx, "s1")
	e.Send(ctx, "elsewhere", "s2", "slack")

	s := e.Snapshot()
	if len(s.Messages) != 0 {
		t.Errorf("message appended to wrong view: %+v", s.Messages)
	}
	if s.Sources[1].LastMessage != "elsewhere" {
		t.Errorf("source not patched: %+v", s.Sources[1])
	}
}

func TestSendFailureIsAllOrNothing(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "s1", LastMessage: "before"}}
	e := New(api, nil, time.Hour)
	ctx := context.Background()

	e.RefreshSources(ctx)
	e.Select(ctx, "s1")
	api.setErr(errors.New("Failed to post message"))

	if _, err := e.Send(ctx, "hi", "s1", "local"); err == nil {
		t.Fatal("expected error")
	}

	s := e.Snapshot()
	if len(s.Messages) != 0 || s.Sources[0].LastMessage != "before" {
		t.Errorf("state mutated on failure: %+v", s)
	}
	if s.Error != "Failed to post message" {
		t.Errorf("error = %q", s.Error)
	}

	api.setErr(nil)
	e.Send(ctx, "hi", "s1", "local")
	if e.Snapshot().Error != "" {
		t.Error("successful call did not clear error")
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	api := newFakeAPI()
	e := New(api, nil, time.Hour)

	if _, err := e.Send(context.Background(), " \n", "s1", "local"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if api.nextID != 0 {
		t.Error("request issued for empty content")
	}
}

func TestErrorSlotOverwrites(t *testing.T) {
	api := newFakeAPI()
	e := New(api, nil, time.Hour)
	ctx := context.Background()

	api.setErr(errors.New("first"))
	e.RefreshSources(ctx)
	api.setErr(errors.New("second"))
	e.RefreshSources(ctx)

	if got := e.Snapshot().Error; got != "second" {
		t.Errorf("error = %q", got)
	}

	e.ClearError()
	if got := e.Snapshot().Error; got != "" {
		t.Errorf("error after clear = %q", got)
	}
}

func TestAddSourceAppends(t *testing.T) {
	api := newFakeAPI()
	e := New(api, nil, time.Hour)

	src, err := e.AddSource(context.Background(), "Team", domain.SourceDiscord, "tok")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := e.Snapshot().Sources; len(got) != 1 || got[0].ID != src.ID {
		t.Errorf("sources = %+v", got)
	}
}

func TestBootstrapProvisionsOnlyWhenEmpty(t *testing.T) {
	api := newFakeAPI()
	e := New(api, nil, time.Hour)
	ctx := context.Background()

	if err := e.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := e.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	if api.created != 1 {
		t.Errorf("created %d default sources", api.created)
	}
	got := e.Snapshot().Sources
	if len(got) != 1 || got[0].Type != domain.SourceLocal || got[0].Name != "Welcome Chat" {
		t.Errorf("sources = %+v", got)
	}
}

func TestRunPollsActiveSource(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "first"}, {ID: "second"}}
	e := New(api, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.RefreshSources(ctx)
	e.Select(ctx, "second")

	go e.Run(ctx)
	waitFor(t, func() bool { return api.callCount("second") >= 3 })
	e.Stop()

	if n := api.callCount("first"); n != 0 {
		t.Errorf("polled inactive first source %d times", n)
	}
}

func TestRunFallsBackToFirstSource(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "first"}}
	e := New(api, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.RefreshSources(ctx)
	go e.Run(ctx)
	waitFor(t, func() bool { return api.callCount("first") >= 1 })
	e.Stop()
}

func TestRunStopsWhenSessionCleared(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "s"}}
	session := auth.NewSession()
	session.Set("tok", "alice")

	e := New(api, session, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.RefreshSources(ctx)
	e.Select(ctx, "s")

	exited := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(exited)
	}()

	waitFor(t, func() bool { return api.callCount("s") >= 2 })
	session.Clear()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("poll loop kept running after logout")
	}

	if s := e.Snapshot(); len(s.Sources) != 0 || s.ActiveSourceID != "" || len(s.Messages) != 0 {
		t.Errorf("state not reset: %+v", s)
	}
}

func TestLogoutDropsInFlightSources(t *testing.T) {
	api := newFakeAPI()
	api.sources = []domain.Source{{ID: "alice_src", Name: "alice private"}}
	session := auth.NewSession()
	session.Set("tok", "alice")

	e := New(api, session, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.RefreshSources(ctx)
	e.Select(ctx, "alice_src")

	exited := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(exited)
	}()
	waitFor(t, func() bool { return api.callCount("alice_src") >= 2 })

	gate := make(chan struct{})
	api.mu.Lock()
	api.sourcesGate = gate
	api.mu.Unlock()

	calls := api.sourceCallCount()
	refreshed := make(chan struct{})
	go func() {
		e.RefreshSources(ctx)
		close(refreshed)
	}()
	waitFor(t, func() bool { return api.sourceCallCount() > calls })

	session.Clear()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("poll loop kept running after logout")
	}

	close(gate)
	<-refreshed

	s := e.Snapshot()
	if len(s.Sources) != 0 {
		t.Errorf("previous user's sources restored after logout: %+v", s.Sources)
	}
	if s.ActiveSourceID != "" || s.Error != "" {
		t.Errorf("state = %+v", s)
	}
}

func TestSubscribeNotified(t *testing.T) {
	api := newFakeAPI()
	e := New(api, nil, time.Hour)
	ch := e.Subscribe()

	e.RefreshSources(context.Background())

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}
