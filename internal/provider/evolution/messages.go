package evolution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/domain/filter"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
)

// Live event types.
const (
	typeTableAssigned   = "TableAssigned"
	typeTableOpened     = "tableOpened"
	typeTableClosed     = "tableClosed"
	typeTableUnassigned = "tableUnassigned"
	typePlayersUpdated  = "playersUpdated"

	// typeCurrentResults is emitted on subscribe with the table's results at
	// that moment. It belongs to the results class.
	typeCurrentResults = "CurrentResultsUpdated"
	typeSnapshotLoaded = "snapshotLoaded"
)

var errMissingType = errors.New("missing type")

// liveMessage is the common shape of live frames. Some events nest their
// fields under "data"; tableId is taken from either level. Members of an
// unexpected type read as absent.
type liveMessage struct {
	Type       string
	TableID    string
	Table      json.RawMessage
	Players    int
	HasPlayers bool
	Results    json.RawMessage
}

func decodeLive(raw []byte) (liveMessage, error) {
	f, err := provider.DecodeFields(raw)
	if err != nil {
		return liveMessage{}, err
	}
	m := liveMessage{Type: f.Text("type"), TableID: f.Text("tableId")}
	if m.Type == "" {
		return liveMessage{}, errMissingType
	}
	m.Table, _ = f.Raw("table")
	m.Results, _ = f.Raw("results")
	m.Players, m.HasPlayers = f.Int("players")
	if !m.HasPlayers {
		m.Players, m.HasPlayers = f.Int("count")
	}

	data, ok := f.Object("data")
	if !ok {
		// A non-object data member is the payload itself, e.g. a results list.
		if d, ok := f.Raw("data"); ok && len(m.Results) == 0 {
			m.Results = d
		}
		return m, nil
	}
	if m.TableID == "" {
		m.TableID = data.Text("tableId")
	}
	if len(m.Table) == 0 {
		m.Table, _ = data.Raw("table")
	}
	if !m.HasPlayers {
		m.Players, m.HasPlayers = data.Int("players")
	}
	if len(m.Results) == 0 {
		m.Results, _ = data.Raw("results")
	}
	return m, nil
}

// ParseMessage filters one live frame against the subscription set, applies
// relevant state changes and emits forwardable results.
func (a *Adapter) ParseMessage(ctx context.Context, raw []byte) error {
	msg, err := decodeLive(raw)
	if err != nil {
		a.stats.Malformed()
		metrics.RecordUpstreamMessage(a.name, "malformed")
		return fmt.Errorf("%w: %v", provider.ErrMalformedMessage, err)
	}

	verdict := a.subs.Evaluate(msg.TableID, msg.Type)
	result := filter.IsResult(msg.Type)
	a.stats.Observe(msg.Type, verdict.Relevant, result)
	if !verdict.Relevant {
		metrics.RecordUpstreamMessage(a.name, "filtered")
		return nil
	}

	a.apply(ctx, &msg, raw)

	if !verdict.Forward {
		metrics.RecordUpstreamMessage(a.name, "relevant")
		return nil
	}
	metrics.RecordUpstreamMessage(a.name, "forwarded")
	a.emit(ctx, model.Event{
		Provider:   a.name,
		GameID:     msg.TableID,
		Type:       msg.Type,
		Relevant:   true,
		Forward:    true,
		Payload:    append(json.RawMessage(nil), raw...),
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}

// apply mutates the game store for a relevant message.
func (a *Adapter) apply(ctx context.Context, msg *liveMessage, raw []byte) {
	if msg.TableID == "" {
		return
	}
	now := time.Now().UTC()

	switch {
	case msg.Type == typeTableAssigned:
		g, err := a.ConvertRaw(msg.TableID, msg.Table)
		if err != nil {
			g = model.Stub(a.name, msg.TableID)
		}
		g.UpdatedAt = now
		if a.store.Upsert(ctx, g) {
			a.log.Debug(ctx, "table assigned", logger.String("tableId", msg.TableID))
		}

	case msg.Type == typeTableUnassigned:
		a.store.Delete(ctx, msg.TableID)

	case msg.Type == typeTableOpened, msg.Type == typeTableClosed:
		status := model.StatusOpen
		if msg.Type == typeTableClosed {
			status = model.StatusClosed
		}
		a.mutate(ctx, msg.TableID, func(g *model.Game) {
			g.Status = status
			g.UpdatedAt = now
		})

	case msg.Type == typePlayersUpdated:
		if !msg.HasPlayers {
			return
		}
		n := msg.Players
		a.mutate(ctx, msg.TableID, func(g *model.Game) {
			g.PlayerCount = n
			g.UpdatedAt = now
		})

	case filter.IsResult(msg.Type):
		results := msg.Results
		if len(results) == 0 {
			results = bytes.TrimSpace(raw)
		}
		results = append(json.RawMessage(nil), results...)
		a.mutate(ctx, msg.TableID, func(g *model.Game) {
			g.LastResults = results
			g.UpdatedAt = now
		})
	}
}

// mutate updates a game in place, discovering it first when unknown.
func (a *Adapter) mutate(ctx context.Context, id string, fn func(*model.Game)) {
	if _, err := a.store.Update(ctx, id, fn); err == nil {
		return
	}
	g := model.Stub(a.name, id)
	fn(&g)
	a.store.Upsert(ctx, g)
}
