// Package probe drives a running gateway over its public surface: it
// subscribes to games on /ws and checks that only subscribed games arrive.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	frameBuffer    = 64
)

type frame struct {
	ev  model.ClientEvent
	raw []byte
}

// Run executes one probe session and returns its report. The error is
// non-nil when the gateway misrouted an update or no subscription succeeded.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Report, error) {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	client := &http.Client{Timeout: timeout}
	report := newReport(cfg)
	defer func() { report.Duration = time.Since(report.Started) }()

	log.Info(ctx, "starting probe",
		logger.String("url", base),
		logger.String("provider", cfg.Provider),
		logger.Any("games", cfg.Games),
		logger.Duration("duration", cfg.Duration))

	health, err := checkHealth(ctx, client, base)
	if err != nil {
		return report, err
	}
	report.Health = health
	if health != "ok" {
		log.Warn(ctx, "gateway reports degraded health", logger.String("status", health))
	}

	p, err := lookupProvider(ctx, client, base, cfg.Provider)
	if err != nil {
		return report, err
	}
	report.Direct = p.SupportsDirectSubscription

	wsURL, err := socketURL(base)
	if err != nil {
		return report, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return report, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	frames := make(chan frame, frameBuffer)
	done := make(chan struct{})
	defer close(done)
	go readFrames(conn, frames, done)

	s := &session{cfg: cfg, conn: conn, frames: frames, report: report, log: log, timeout: timeout}
	if err := s.greeting(ctx); err != nil {
		return report, err
	}
	if err := s.subscribe(ctx); err != nil {
		return report, err
	}
	s.collect(ctx)
	s.unsubscribe(ctx)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return report, report.Verify()
}

// readFrames pumps decoded frames until the socket fails.
func readFrames(conn *websocket.Conn, out chan<- frame, done <-chan struct{}) {
	defer close(out)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev model.ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		select {
		case out <- frame{ev: ev, raw: raw}:
		case <-done:
			return
		}
	}
}

type session struct {
	cfg     *Config
	conn    *websocket.Conn
	frames  <-chan frame
	report  *Report
	log     logger.Logger
	timeout time.Duration
}

func (s *session) next(ctx context.Context, wait time.Duration) (frame, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return frame{}, false
	case <-timer.C:
		return frame{}, false
	case f, ok := <-s.frames:
		if ok && s.cfg.Verbose {
			s.log.Debug(ctx, "frame", logger.String("raw", string(f.raw)))
		}
		return f, ok
	}
}

func (s *session) greeting(ctx context.Context) error {
	f, ok := s.next(ctx, s.timeout)
	if !ok {
		return fmt.Errorf("%w: no greeting", ErrProtocol)
	}
	if f.ev.Type != model.TypeConnection {
		return fmt.Errorf("%w: got %q before greeting", ErrProtocol, f.ev.Type)
	}
	if !slices.Contains(f.ev.Providers, s.cfg.Provider) {
		return fmt.Errorf("%w: %s not announced", ErrUnknownProvider, s.cfg.Provider)
	}
	return nil
}

func (s *session) send(cmdType, gameID string) error {
	return s.conn.WriteJSON(model.Command{Type: cmdType, Provider: s.cfg.Provider, GameID: gameID})
}

// subscribe sends every subscription and waits for each to be answered.
func (s *session) subscribe(ctx context.Context) error {
	pending := make(map[string]bool, len(s.cfg.Games))
	for _, id := range s.cfg.Games {
		if err := s.send(model.CommandSubscribe, id); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
		pending[id] = true
	}
	deadline := time.Now().Add(s.timeout)
	for len(pending) > 0 {
		f, ok := s.next(ctx, time.Until(deadline))
		if !ok {
			break
		}
		switch f.ev.Type {
		case model.TypeSubscriptionSuccess:
			delete(pending, f.ev.GameID)
			s.report.Acked = append(s.report.Acked, f.ev.GameID)
			s.log.Info(ctx, "subscribed", logger.String("game", f.ev.GameID))
		case model.TypeError:
			// Errors do not name the game; attribute them in send order.
			for _, id := range s.cfg.Games {
				if pending[id] {
					delete(pending, id)
					s.report.Rejected[id] = f.ev.Message
					s.log.Warn(ctx, "subscription rejected", logger.String("game", id), logger.String("reason", f.ev.Message))
					break
				}
			}
		default:
			s.observe(ctx, f)
		}
	}
	for id := range pending {
		s.report.Rejected[id] = "no answer"
	}
	return nil
}

// collect records updates until the configured duration elapses.
func (s *session) collect(ctx context.Context) {
	deadline := time.Now().Add(s.cfg.Duration)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return
		}
		f, ok := s.next(ctx, wait)
		if !ok {
			return
		}
		s.observe(ctx, f)
	}
}

func (s *session) observe(ctx context.Context, f frame) {
	if f.ev.Type != model.TypeGameUpdate {
		return
	}
	s.report.Updates++
	s.report.PerGame[f.ev.GameID]++
	if s.report.Direct || f.ev.Provider != s.cfg.Provider {
		return
	}
	if !slices.Contains(s.report.Acked, f.ev.GameID) {
		s.report.violation(f.ev.GameID)
		s.log.Error(ctx, "update for unsubscribed game", logger.String("game", f.ev.GameID))
	}
}

func (s *session) unsubscribe(ctx context.Context) {
	for _, id := range s.report.Acked {
		if err := s.send(model.CommandUnsubscribe, id); err != nil {
			s.log.Warn(ctx, "unsubscribe failed", logger.String("game", id), logger.Error(err))
			return
		}
	}
	deadline := time.Now().Add(s.timeout)
	for s.report.Unsubscribed < len(s.report.Acked) {
		f, ok := s.next(ctx, time.Until(deadline))
		if !ok {
			return
		}
		if f.ev.Type == model.TypeUnsubscriptionSuccess {
			s.report.Unsubscribed++
			continue
		}
		s.observe(ctx, f)
	}
}

// Verify turns the report into a pass/fail verdict.
func (r *Report) Verify() error {
	var errs []error
	if len(r.Acked) == 0 {
		errs = append(errs, ErrNoSubscription)
	}
	if len(r.Violations) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrRouting, strings.Join(r.Violations, ",")))
	}
	return errors.Join(errs...)
}

// WriteSummary prints a human readable summary of the report.
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "provider:      %s (direct=%t, health=%s)\n", r.Provider, r.Direct, r.Health)
	fmt.Fprintf(w, "subscribed:    %s\n", strings.Join(r.Acked, ","))
	for _, id := range slices.Sorted(maps.Keys(r.Rejected)) {
		fmt.Fprintf(w, "rejected:      %s (%s)\n", id, r.Rejected[id])
	}
	fmt.Fprintf(w, "updates:       %d\n", r.Updates)
	for _, id := range slices.Sorted(maps.Keys(r.PerGame)) {
		name := id
		if name == "" {
			name = "(provider-wide)"
		}
		fmt.Fprintf(w, "  %-20s %d\n", name, r.PerGame[id])
	}
	fmt.Fprintf(w, "unsubscribed:  %d/%d\n", r.Unsubscribed, len(r.Acked))
	fmt.Fprintf(w, "duration:      %s\n", r.Duration.Round(time.Millisecond))
	if len(r.Violations) > 0 {
		fmt.Fprintf(w, "VIOLATIONS:    %s\n", strings.Join(r.Violations, ","))
	} else {
		fmt.Fprintln(w, "routing:       ok")
	}
}
