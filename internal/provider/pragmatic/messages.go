package pragmatic

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
)

const (
	typeGameUpdate  = "gameUpdate"
	defaultLanguage = "en"
)

// Outbound control frames.
type (
	authFrame struct {
		Type     string `json:"type"`
		CasinoID string `json:"casinoId"`
	}
	controlFrame struct {
		Type    string `json:"type"`
		TableID string `json:"table_id,omitempty"`
	}
)

// Frames are either {type:"gameUpdate", data:{tableId,...}} or a flat
// {tableId,...} object, read through provider.Fields. mappedFields lists the
// members that land on Game; the rest go to ProviderData.
var mappedFields = map[string]struct{}{
	"tableId": {}, "tableName": {}, "name": {}, "gameType": {}, "players": {},
	"playerCount": {}, "tableOpen": {}, "status": {}, "language": {}, "gameResult": {},
	"type": {},
}

func players(f provider.Fields) (int, bool) {
	if n, ok := f.Int("players"); ok {
		return n, true
	}
	return f.Int("playerCount")
}

func status(f provider.Fields) (model.Status, bool) {
	if open, ok := f.Bool("tableOpen"); ok {
		if open {
			return model.StatusOpen, true
		}
		return model.StatusClosed, true
	}
	switch strings.ToLower(f.Text("status")) {
	case "open", "opened":
		return model.StatusOpen, true
	case "closed":
		return model.StatusClosed, true
	}
	return "", false
}

// ConvertRaw synthesizes a game from whatever fields a frame carries.
func (a *Adapter) ConvertRaw(id string, raw json.RawMessage) (model.Game, error) {
	if strings.TrimSpace(id) == "" {
		return model.Game{}, fmt.Errorf("%w: empty table id", provider.ErrMalformedMessage)
	}
	f := provider.Fields{}
	if len(bytes.TrimSpace(raw)) > 0 {
		var err error
		if f, err = provider.DecodeFields(raw); err != nil {
			return model.Game{}, fmt.Errorf("%w: table %s: %v", provider.ErrMalformedMessage, id, err)
		}
	}
	return a.convert(id, f), nil
}

func (a *Adapter) convert(id string, f provider.Fields) model.Game {
	g := model.Game{
		ID:           id,
		Name:         cmp.Or(f.Text("tableName"), f.Text("name"), "Pragmatic Table "+id),
		Provider:     a.name,
		GameType:     cmp.Or(f.Text("gameType"), "unknown"),
		Vertical:     "live",
		Status:       model.StatusOpen,
		Language:     cmp.Or(f.Text("language"), defaultLanguage),
		ProviderData: f.Extra(mappedFields),
		UpdatedAt:    time.Now().UTC(),
	}
	if n, ok := players(f); ok {
		g.PlayerCount = n
	}
	if s, ok := status(f); ok {
		g.Status = s
	}
	if results, ok := f.Raw("gameResult"); ok {
		g.LastResults = append(json.RawMessage(nil), results...)
	}
	return g
}

// ParseMessage discovers or updates the table a frame refers to and forwards
// the frame verbatim. Only frames that are not a JSON object are dropped.
func (a *Adapter) ParseMessage(ctx context.Context, raw []byte) error {
	f, err := provider.DecodeFields(raw)
	if err != nil {
		return a.malformed(err)
	}

	body := f
	if data, ok := f.Object("data"); ok {
		body = data
	}
	tableID := cmp.Or(body.Text("tableId"), f.Text("tableId"))
	results, hasResult := f.Raw("gameResult")
	if !hasResult {
		results, hasResult = body.Raw("gameResult")
	}
	msgType := cmp.Or(f.Text("type"), typeGameUpdate)

	if tableID != "" {
		a.apply(ctx, tableID, body, results)
	}

	a.stats.Observe(msgType, true, hasResult)
	metrics.RecordUpstreamMessage(a.name, "forwarded")
	a.emit(ctx, model.Event{
		Provider:   a.name,
		GameID:     tableID,
		Type:       msgType,
		Relevant:   true,
		Forward:    true,
		Payload:    append(json.RawMessage(nil), bytes.TrimSpace(raw)...),
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}

func (a *Adapter) malformed(err error) error {
	a.stats.Malformed()
	metrics.RecordUpstreamMessage(a.name, "malformed")
	return fmt.Errorf("%w: %v", provider.ErrMalformedMessage, err)
}

// apply creates the table on first sight and otherwise updates the fields
// present in the frame.
func (a *Adapter) apply(ctx context.Context, id string, body provider.Fields, results json.RawMessage) {
	_, err := a.store.Update(ctx, id, func(g *model.Game) {
		if n, ok := players(body); ok {
			g.PlayerCount = n
		}
		if s, ok := status(body); ok {
			g.Status = s
		}
		if name := cmp.Or(body.Text("tableName"), body.Text("name")); name != "" {
			g.Name = name
		}
		if len(results) > 0 {
			g.LastResults = append(json.RawMessage(nil), results...)
		}
		g.UpdatedAt = time.Now().UTC()
	})
	if err == nil {
		return
	}

	g := a.convert(id, body)
	if len(results) > 0 {
		g.LastResults = append(json.RawMessage(nil), results...)
	}
	a.store.Upsert(ctx, g)
	a.log.Debug(ctx, "table discovered", logger.String("tableId", id))
}
