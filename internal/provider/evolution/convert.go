package evolution

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
)

// stateResponse is the lobby snapshot envelope.
type stateResponse struct {
	Tables map[string]json.RawMessage `json:"tables"`
}

// mappedFields land on Game. Everything else goes to ProviderData untouched.
var mappedFields = map[string]struct{}{
	"name": {}, "gameType": {}, "gameVertical": {}, "open": {},
	"players": {}, "language": {}, "results": {},
}

// convertTable maps one snapshot entry onto a Game. Only a non-object entry
// fails; members of an unexpected type fall back to defaults.
func convertTable(providerName, id string, raw json.RawMessage) (model.Game, error) {
	if strings.TrimSpace(id) == "" {
		return model.Game{}, fmt.Errorf("%w: empty table id", provider.ErrMalformedMessage)
	}
	f, err := provider.DecodeFields(raw)
	if err != nil {
		return model.Game{}, fmt.Errorf("%w: table %s: %v", provider.ErrMalformedMessage, id, err)
	}

	g := model.Game{
		ID:           id,
		Name:         cmp.Or(f.Text("name"), id),
		Provider:     providerName,
		GameType:     cmp.Or(f.Text("gameType"), "unknown"),
		Vertical:     f.Text("gameVertical"),
		Status:       model.StatusOpen,
		Language:     f.Text("language"),
		ProviderData: f.Extra(mappedFields),
		UpdatedAt:    time.Now().UTC(),
	}
	g.PlayerCount, _ = f.Int("players")
	if open, ok := f.Bool("open"); ok && !open {
		g.Status = model.StatusClosed
	}
	if results, ok := f.Raw("results"); ok {
		g.LastResults = append(json.RawMessage(nil), results...)
	}
	return g, nil
}
