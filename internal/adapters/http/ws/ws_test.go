package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/okian/tablewire/internal/adapters/http/ws"
	service "github.com/okian/tablewire/internal/app"
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider/evolution"
	"github.com/okian/tablewire/internal/provider/pragmatic"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	svc  *service.Service
	evo  *evolution.Adapter
	prag *pragmatic.Adapter
	url  string
}

func newGateway(t *testing.T, opts ...ws.Option) *gateway {
	t.Helper()
	ctx := context.Background()
	cfg := config.New(ctx)
	g := &gateway{
		evo:  evolution.New(cfg.Evolution),
		prag: pragmatic.New(cfg.Pragmatic),
	}
	g.svc = service.New(cfg, service.WithProviders(g.evo, g.prag))
	require.NoError(t, g.svc.Start(ctx))
	<-g.svc.Loaded()

	mux := http.NewServeMux()
	ws.NewHandler(g.svc.Hub(), opts...).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		g.svc.Stop(ctx)
		srv.Close()
	})
	g.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return g
}

// client reads its socket from one goroutine so waiting for silence never
// trips a read deadline on the connection itself.
type client struct {
	*websocket.Conn
	frames chan []byte
}

func dial(t *testing.T, url string, header http.Header) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	c := &client{Conn: conn, frames: make(chan []byte, 64)}
	go func() {
		defer close(c.frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.frames <- data
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func read(t *testing.T, c *client) model.ClientEvent {
	t.Helper()
	select {
	case data, ok := <-c.frames:
		require.True(t, ok, "connection closed")
		var ev model.ClientEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no frame within 2s")
	}
	return model.ClientEvent{}
}

func expectSilence(t *testing.T, c *client) {
	t.Helper()
	select {
	case data, ok := <-c.frames:
		if ok {
			require.FailNow(t, "unexpected frame", "%s", data)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func send(t *testing.T, c *client, cmd model.Command) {
	t.Helper()
	require.NoError(t, c.WriteJSON(cmd))
}

func TestSubscribeAndReceiveOnlySubscribedTable(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	c := dial(t, g.url, nil)

	hello := read(t, c)
	require.Equal(t, model.TypeConnection, hello.Type)
	require.Equal(t, []string{"evolution", "pragmatic"}, hello.Providers)

	send(t, c, model.Command{Type: model.CommandSubscribe, Provider: "evolution", GameID: "table-42"})
	ack := read(t, c)
	require.Equal(t, model.TypeSubscriptionSuccess, ack.Type)
	require.Equal(t, "table-42", ack.GameID)

	require.NoError(t, g.evo.ParseMessage(ctx, []byte(`{"type":"XResultsUpdated","tableId":"table-42","results":[1]}`)))
	require.NoError(t, g.evo.ParseMessage(ctx, []byte(`{"type":"XResultsUpdated","tableId":"table-99","results":[2]}`)))

	update := read(t, c)
	require.Equal(t, model.TypeGameUpdate, update.Type)
	require.Equal(t, "evolution", update.Provider)
	require.Equal(t, "table-42", update.GameID)
	require.NotEmpty(t, update.Timestamp)
	var data struct {
		TableID string `json:"tableId"`
	}
	require.NoError(t, json.Unmarshal(update.Data, &data))
	require.Equal(t, "table-42", data.TableID)
	expectSilence(t, c)

	send(t, c, model.Command{Type: model.CommandUnsubscribe, Provider: "evolution", GameID: "table-42"})
	require.Equal(t, model.TypeUnsubscriptionSuccess, read(t, c).Type)
	require.NoError(t, g.evo.ParseMessage(ctx, []byte(`{"type":"XResultsUpdated","tableId":"table-42"}`)))
	expectSilence(t, c)
	require.Equal(t, 0, g.svc.Subscriptions())
}

func TestDirectProviderForwardsEverything(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	subscribed := dial(t, g.url, nil)
	idle := dial(t, g.url, nil)
	read(t, subscribed)
	read(t, idle)

	send(t, subscribed, model.Command{Type: model.CommandSubscribe, Provider: "pragmatic", GameID: "pp-demo-roulette"})
	require.Equal(t, model.TypeSubscriptionSuccess, read(t, subscribed).Type)

	frames := []string{
		`{"type":"gameUpdate","data":{"tableId":"other-table","players":3}}`,
		`{"tableId":"pp-demo-roulette","gameResult":[{"n":17}]}`,
	}
	for _, f := range frames {
		require.NoError(t, g.prag.ParseMessage(ctx, []byte(f)))
	}
	for _, f := range frames {
		ev := read(t, subscribed)
		require.Equal(t, model.TypeGameUpdate, ev.Type)
		require.JSONEq(t, f, string(ev.Data))
	}
	expectSilence(t, idle)
}

func TestBadCommandsGetErrorFrames(t *testing.T) {
	g := newGateway(t)
	c := dial(t, g.url, nil)
	read(t, c)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	ev := read(t, c)
	require.Equal(t, model.TypeError, ev.Type)
	require.Contains(t, ev.Message, "invalid JSON")

	send(t, c, model.Command{Type: model.CommandSubscribe, Provider: "nobody", GameID: "x"})
	ev = read(t, c)
	require.Equal(t, model.TypeError, ev.Type)
	require.Contains(t, ev.Message, "nobody")
}

func TestDisconnectCascades(t *testing.T) {
	g := newGateway(t)
	c := dial(t, g.url, nil)
	read(t, c)
	send(t, c, model.Command{Type: model.CommandSubscribe, Provider: "evolution", GameID: "table-1"})
	read(t, c)
	require.Equal(t, []string{"table-1"}, g.evo.Subscriptions())

	require.NoError(t, c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))

	require.Eventually(t, func() bool {
		return g.svc.Clients() == 0 && len(g.evo.Subscriptions()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOversizedFrameClosesSession(t *testing.T) {
	g := newGateway(t, ws.WithReadLimit(64))
	c := dial(t, g.url, nil)
	read(t, c)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 256))))
	require.Eventually(t, func() bool { return g.svc.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	g := newGateway(t, ws.WithAllowedOrigins([]string{"https://lobby.example.com"}))

	ok := dial(t, g.url, http.Header{"Origin": {"https://lobby.example.com"}})
	require.Equal(t, model.TypeConnection, read(t, ok).Type)

	_, resp, err := websocket.DefaultDialer.Dial(g.url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
