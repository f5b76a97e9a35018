package service_test

import (
	"context"
	"slices"
	"sync"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
)

// fakeProvider records upstream interest and lets tests push events.
type fakeProvider struct {
	name   string
	direct bool
	events chan model.Event

	mu        sync.Mutex
	subs      []string
	unsubs    []string
	connects  int
	loadErr   error
	extra     map[string]any
	closed    bool
	closeOnce sync.Once
}

func newFake(name string, direct bool) *fakeProvider {
	return &fakeProvider{name: name, direct: direct, events: make(chan model.Event, 16)}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Kind() provider.Kind {
	if f.direct {
		return provider.KindPragmatic
	}
	return provider.KindEvolution
}

func (f *fakeProvider) LoadInitialState(context.Context) error { return f.loadErr }

func (f *fakeProvider) ConnectLiveStream(context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) ParseMessage(context.Context, []byte) error { return nil }

func (f *fakeProvider) ConvertRaw(id string, _ json.RawMessage) (model.Game, error) {
	return model.Stub(f.name, id), nil
}

func (f *fakeProvider) FormatResult(ev model.Event) model.ClientEvent {
	return model.ClientEvent{Type: model.TypeGameUpdate, Provider: f.name, GameID: ev.GameID, Data: ev.Payload}
}

func (f *fakeProvider) SupportsDirectSubscription() bool { return f.direct }

func (f *fakeProvider) Subscribe(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, id)
	return nil
}

func (f *fakeProvider) Unsubscribe(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, id)
	return nil
}

func (f *fakeProvider) Events() <-chan model.Event { return f.events }

func (f *fakeProvider) Games(context.Context) []model.Game {
	return []model.Game{model.Stub(f.name, "g1")}
}

func (f *fakeProvider) Game(_ context.Context, id string) (model.Game, error) {
	if id == "g1" {
		return model.Stub(f.name, id), nil
	}
	return model.Game{}, provider.ErrGameNotFound
}

func (f *fakeProvider) ResolveGame(_ context.Context, id string) model.Game {
	g := model.Stub(f.name, id)
	g.ProviderData = f.extra
	return g
}

func (f *fakeProvider) Health() provider.Health {
	return provider.Health{
		Provider:   f.name,
		Kind:       f.Kind(),
		State:      model.StateConnected,
		Connected:  true,
		Configured: true,
		Mode:       provider.ModeLive,
		Degraded:   f.loadErr != nil,
	}
}

func (f *fakeProvider) Stats() model.MessageStats { return model.MessageStats{} }

func (f *fakeProvider) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

func (f *fakeProvider) calls() (subs, unsubs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.subs), slices.Clone(f.unsubs)
}
