package evolution_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/internal/provider/evolution"
	. "github.com/smartystreets/goconvey/convey"
)

func nextEvent(a *evolution.Adapter, wait time.Duration) (model.Event, bool) {
	select {
	case ev, ok := <-a.Events():
		return ev, ok
	case <-time.After(wait):
		return model.Event{}, false
	}
}

func TestParseMessageFiltering(t *testing.T) {
	Convey("Given an adapter subscribed to table-42", t, func() {
		ctx := context.Background()
		a := evolution.New(config.EvolutionConfig{})
		defer a.Close()
		So(a.Subscribe(ctx, "table-42"), ShouldBeNil)

		Convey("When results arrive for table-99", func() {
			So(a.ParseMessage(ctx, []byte(`{"type":"BaccaratResultsUpdated","tableId":"table-99","results":[1]}`)), ShouldBeNil)

			Convey("Then they are filtered and nothing is forwarded", func() {
				_, ok := nextEvent(a, 20*time.Millisecond)
				So(ok, ShouldBeFalse)
				st := a.Stats()
				So(st.Filtered, ShouldEqual, uint64(1))
				So(st.Results, ShouldEqual, uint64(1))
				So(st.RelevantResults, ShouldEqual, uint64(0))
				_, err := a.Game(ctx, "table-99")
				So(errors.Is(err, provider.ErrGameNotFound), ShouldBeTrue)
			})
		})

		Convey("When results arrive for table-42", func() {
			raw := `{"type":"BaccaratResultsUpdated","tableId":"table-42","results":[3,4]}`
			So(a.ParseMessage(ctx, []byte(raw)), ShouldBeNil)

			Convey("Then the frame is forwarded verbatim and stored", func() {
				ev, ok := nextEvent(a, time.Second)
				So(ok, ShouldBeTrue)
				So(ev.Forward, ShouldBeTrue)
				So(ev.Relevant, ShouldBeTrue)
				So(ev.GameID, ShouldEqual, "table-42")
				So(string(ev.Payload), ShouldEqual, raw)

				g, err := a.Game(ctx, "table-42")
				So(err, ShouldBeNil)
				So(string(g.LastResults), ShouldEqual, "[3,4]")

				out := a.FormatResult(ev)
				So(out.Type, ShouldEqual, model.TypeGameUpdate)
				So(out.Provider, ShouldEqual, "evolution")
				So(out.GameID, ShouldEqual, "table-42")
			})
		})

		Convey("When a status change arrives for table-42", func() {
			So(a.ParseMessage(ctx, []byte(`{"type":"tableClosed","tableId":"table-42"}`)), ShouldBeNil)
			So(a.ParseMessage(ctx, []byte(`{"type":"playersUpdated","data":{"tableId":"table-42","players":9}}`)), ShouldBeNil)

			Convey("Then the game mutates without forwarding", func() {
				_, ok := nextEvent(a, 20*time.Millisecond)
				So(ok, ShouldBeFalse)
				g, err := a.Game(ctx, "table-42")
				So(err, ShouldBeNil)
				So(g.Status, ShouldEqual, model.StatusClosed)
				So(g.PlayerCount, ShouldEqual, 9)
			})
		})

		Convey("When results for table-42 carry a data list", func() {
			raw := `{"type":"BaccaratResultsUpdated","tableId":"table-42","data":[{"winner":"Banker"}]}`
			So(a.ParseMessage(ctx, []byte(raw)), ShouldBeNil)

			Convey("Then the frame is forwarded and the list kept as results", func() {
				ev, ok := nextEvent(a, time.Second)
				So(ok, ShouldBeTrue)
				So(string(ev.Payload), ShouldEqual, raw)
				g, err := a.Game(ctx, "table-42")
				So(err, ShouldBeNil)
				So(string(g.LastResults), ShouldEqual, `[{"winner":"Banker"}]`)
			})
		})

		Convey("When members of table-42 frames have unexpected types", func() {
			So(a.ParseMessage(ctx, []byte(`{"type":"playersUpdated","tableId":"table-42","players":"12"}`)), ShouldBeNil)
			So(a.ParseMessage(ctx, []byte(`{"type":"tableOpened","tableId":"table-42","players":{"n":1}}`)), ShouldBeNil)
			raw := `{"type":"RouletteResultsUpdated","tableId":"table-42","results":"17 red"}`
			So(a.ParseMessage(ctx, []byte(raw)), ShouldBeNil)

			Convey("Then nothing is dropped as malformed", func() {
				ev, ok := nextEvent(a, time.Second)
				So(ok, ShouldBeTrue)
				So(string(ev.Payload), ShouldEqual, raw)
				So(a.Stats().Malformed, ShouldEqual, uint64(0))
				g, err := a.Game(ctx, "table-42")
				So(err, ShouldBeNil)
				So(g.PlayerCount, ShouldEqual, 12)
				So(g.Status, ShouldEqual, model.StatusOpen)
			})
		})

		Convey("When a numeric table id arrives while subscribed elsewhere", func() {
			So(a.ParseMessage(ctx, []byte(`{"type":"BaccaratResultsUpdated","tableId":42,"results":[1]}`)), ShouldBeNil)

			Convey("Then it is read as text and filtered by the usual rule", func() {
				_, ok := nextEvent(a, 20*time.Millisecond)
				So(ok, ShouldBeFalse)
				So(a.Stats().Filtered, ShouldEqual, uint64(1))
				So(a.Stats().Malformed, ShouldEqual, uint64(0))
			})
		})

		Convey("When an untagged message arrives", func() {
			So(a.ParseMessage(ctx, []byte(`{"type":"heartbeat"}`)), ShouldBeNil)
			So(a.ParseMessage(ctx, []byte(`{"type":"lobbyReshuffled"}`)), ShouldBeNil)

			Convey("Then only allow-listed types count as relevant", func() {
				st := a.Stats()
				So(st.Relevant, ShouldEqual, uint64(1))
				So(st.Filtered, ShouldEqual, uint64(1))
			})
		})

		Convey("When a frame is malformed", func() {
			err := a.ParseMessage(ctx, []byte(`{not json`))
			err2 := a.ParseMessage(ctx, []byte(`{"tableId":"table-42"}`))

			Convey("Then it is counted and reported", func() {
				So(errors.Is(err, provider.ErrMalformedMessage), ShouldBeTrue)
				So(errors.Is(err2, provider.ErrMalformedMessage), ShouldBeTrue)
				So(a.Stats().Malformed, ShouldEqual, uint64(2))
			})
		})

		Convey("When the table is unsubscribed", func() {
			So(a.Unsubscribe(ctx, "table-42"), ShouldBeNil)
			So(a.ParseMessage(ctx, []byte(`{"type":"BaccaratResultsUpdated","tableId":"table-99"}`)), ShouldBeNil)

			Convey("Then the empty set passes everything through again", func() {
				ev, ok := nextEvent(a, time.Second)
				So(ok, ShouldBeTrue)
				So(ev.GameID, ShouldEqual, "table-99")
			})
		})
	})

	Convey("Given table lifecycle events with no subscriptions", t, func() {
		ctx := context.Background()
		a := evolution.New(config.EvolutionConfig{})
		defer a.Close()

		So(a.ParseMessage(ctx, []byte(`{"type":"TableAssigned","tableId":"t1","table":{"name":"Speed Roulette","gameType":"roulette"}}`)), ShouldBeNil)
		g, err := a.Game(ctx, "t1")
		So(err, ShouldBeNil)
		So(g.Name, ShouldEqual, "Speed Roulette")
		So(g.GameType, ShouldEqual, "roulette")

		So(a.ParseMessage(ctx, []byte(`{"type":"tableUnassigned","tableId":"t1"}`)), ShouldBeNil)
		_, err = a.Game(ctx, "t1")
		So(errors.Is(err, provider.ErrGameNotFound), ShouldBeTrue)
		So(a.ResolveGame(ctx, "t1").Name, ShouldEqual, "t1")
	})
}

func TestAdapterUnconfigured(t *testing.T) {
	Convey("Given an adapter without credentials", t, func() {
		ctx := context.Background()
		a := evolution.New(config.New(ctx).Evolution)
		defer a.Close()

		Convey("Then upstream calls fail with a config error and health is degraded", func() {
			So(errors.Is(a.LoadInitialState(ctx), provider.ErrConfig), ShouldBeTrue)
			So(errors.Is(a.ConnectLiveStream(ctx), provider.ErrConfig), ShouldBeTrue)
			_, err := a.Client()
			So(errors.Is(err, provider.ErrConfig), ShouldBeTrue)

			h := a.Health()
			So(h.Configured, ShouldBeFalse)
			So(h.Degraded, ShouldBeTrue)
			So(h.Mode, ShouldEqual, provider.ModeLive)
		})
	})
}

func TestAdapterSnapshotAndSubscribe(t *testing.T) {
	Convey("Given a lobby with three tables", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("tableIds") == "table-42" {
				_, _ = w.Write([]byte(`{"tables":{"table-42":{"name":"Lightning","results":["R7","B12"]}}}`))
				return
			}
			_, _ = w.Write([]byte(`{"tables":{"table-42":{"name":"Lightning"},"t2":{"name":"Two"},"bad":"x"}}`))
		}))
		defer srv.Close()

		ctx := context.Background()
		a := evolution.New(testConfig(srv.URL))
		defer a.Close()

		Convey("When the initial state loads", func() {
			So(a.LoadInitialState(ctx), ShouldBeNil)

			Convey("Then valid tables are stored and the summary is reported", func() {
				So(len(a.Games(ctx)), ShouldEqual, 2)
				ev, ok := nextEvent(a, time.Second)
				So(ok, ShouldBeTrue)
				So(ev.Type, ShouldEqual, "snapshotLoaded")
				So(ev.Forward, ShouldBeFalse)

				h := a.Health()
				So(h.Degraded, ShouldBeFalse)
				So(h.LastSnapshot, ShouldNotBeNil)
				So(h.LastSnapshot.Converted, ShouldEqual, 2)
				So(h.LastSnapshot.Failed, ShouldEqual, 1)
			})
		})

		Convey("When table-42 is subscribed", func() {
			So(a.Subscribe(ctx, "table-42"), ShouldBeNil)

			Convey("Then its current results are emitted", func() {
				ev, ok := nextEvent(a, 2*time.Second)
				So(ok, ShouldBeTrue)
				So(ev.Forward, ShouldBeTrue)
				So(ev.GameID, ShouldEqual, "table-42")
				var body struct {
					Type    string   `json:"type"`
					TableID string   `json:"tableId"`
					Results []string `json:"results"`
				}
				So(json.Unmarshal(ev.Payload, &body), ShouldBeNil)
				So(body.Type, ShouldEqual, "CurrentResultsUpdated")
				So(body.Results, ShouldResemble, []string{"R7", "B12"})
			})
		})
	})
}

func TestSnapshotRefresh(t *testing.T) {
	Convey("Given a lobby that drops a table after the first load", t, func() {
		var lobbyCalls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("tableIds") == "table-42" {
				_, _ = w.Write([]byte(`{"tables":{"table-42":{"name":"Lightning","results":["R7"]}}}`))
				return
			}
			if lobbyCalls.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"tables":{"table-42":{"name":"Lightning","players":3},"t2":{"name":"Two"}}}`))
				return
			}
			_, _ = w.Write([]byte(`{"tables":{"table-42":{"name":"Lightning XXL","players":5,"extra":1}}}`))
		}))
		defer srv.Close()

		ctx := context.Background()
		cfg := testConfig(srv.URL)
		cfg.RefreshInterval = 20 * time.Millisecond
		a := evolution.New(cfg)
		defer a.Close()

		So(a.LoadInitialState(ctx), ShouldBeNil)
		So(len(a.Games(ctx)), ShouldEqual, 2)
		So(a.Subscribe(ctx, "table-42"), ShouldBeNil)

		Convey("When refreshes run after live results were stored", func() {
			for {
				ev, ok := nextEvent(a, 2*time.Second)
				So(ok, ShouldBeTrue)
				if ev.GameID == "table-42" && ev.Forward {
					break
				}
			}
			seen := lobbyCalls.Load()
			deadline := time.Now().Add(2 * time.Second)
			for lobbyCalls.Load() < seen+2 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}

			Convey("Then snapshot fields win, live results survive and vanished tables go", func() {
				g, err := a.Game(ctx, "table-42")
				So(err, ShouldBeNil)
				So(g.Name, ShouldEqual, "Lightning XXL")
				So(g.PlayerCount, ShouldEqual, 5)
				So(string(g.LastResults), ShouldEqual, `["R7"]`)
				So(g.ProviderData["extra"], ShouldEqual, float64(1))

				_, err = a.Game(ctx, "t2")
				So(errors.Is(err, provider.ErrGameNotFound), ShouldBeTrue)
				So(len(a.Games(ctx)), ShouldEqual, 1)
			})
		})
	})
}

func TestAdapterLiveStream(t *testing.T) {
	Convey("Given a live socket that drops its first connection", t, func() {
		var conns atomic.Int32
		var user atomic.Value
		upgrader := websocket.Upgrader{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _, _ := r.BasicAuth()
			user.Store(u)
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()
			if conns.Add(1) == 1 {
				return
			}
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"RouletteResultsUpdated","tableId":"t9","results":[17]}`))
			_, _, _ = ws.ReadMessage()
		}))
		defer srv.Close()

		cfg := testConfig(srv.URL)
		cfg.LivePath = "/live"
		cfg.ReconnectDelay = 10 * time.Millisecond
		a := evolution.New(cfg)
		defer a.Close()

		So(a.ConnectLiveStream(context.Background()), ShouldBeNil)
		So(a.ConnectLiveStream(context.Background()), ShouldBeNil)

		Convey("Then it reconnects and forwards results", func() {
			ev, ok := nextEvent(a, 2*time.Second)
			So(ok, ShouldBeTrue)
			So(ev.GameID, ShouldEqual, "t9")
			So(conns.Load(), ShouldEqual, 2)
			So(user.Load(), ShouldEqual, "alice")
			So(a.Health().Connected, ShouldBeTrue)
		})
	})
}
