// Package stream exposes the live endpoints: the console WebSocket,
// the stats WebSocket, and the log history REST endpoint.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vova4kaua/UADIA/pkg/auth"
	"github.com/Vova4kaua/UADIA/pkg/common"
	"github.com/Vova4kaua/UADIA/pkg/console"
	"github.com/Vova4kaua/UADIA/pkg/errors"
	"github.com/Vova4kaua/UADIA/pkg/history"
	"github.com/Vova4kaua/UADIA/pkg/router"
	"github.com/Vova4kaua/UADIA/pkg/runtime"
	"github.com/Vova4kaua/UADIA/pkg/stats"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4096
)

// Handler serves the console and stats endpoints for all servers.
type Handler struct {
	registry   *console.Registry
	store      history.Store
	authorizer auth.Authorizer
	rt         runtime.Runtime
	provider   *runtime.HandleProvider

	upgrader      websocket.Upgrader
	historyLimit  int
	observerQueue int
	statsInterval time.Duration
}

// Config tunes the handler.
type Config struct {
	HistoryLimit  int
	ObserverQueue int
	StatsInterval time.Duration
}

// NewHandler builds the streaming handler. A nil authorizer allows
// everyone.
func NewHandler(registry *console.Registry, store history.Store, authorizer auth.Authorizer,
	rt runtime.Runtime, provider *runtime.HandleProvider, cfg Config) *Handler {
	if authorizer == nil {
		authorizer = auth.AllowAll{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.ObserverQueue <= 0 {
		cfg.ObserverQueue = console.DefaultObserverQueue
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = stats.DefaultInterval
	}
	return &Handler{
		registry:   registry,
		store:      store,
		authorizer: authorizer,
		rt:         rt,
		provider:   provider,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		historyLimit:  cfg.HistoryLimit,
		observerQueue: cfg.ObserverQueue,
		statsInterval: cfg.StatsInterval,
	}
}

// connSink adapts a WebSocket connection to the observer Sink. Writes
// are serialized; gorilla connections allow one concurrent writer.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *connSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// HandleConsole serves GET /ws/console/:server_id. The connection
// attaches to the server's session; when the server is not running the
// client gets an info notice and the connection stays open so history
// remains queryable.
func (h *Handler) HandleConsole(w http.ResponseWriter, r *http.Request) {
	serverID := router.Param(r, "server_id")
	if serverID == "" {
		errors.WriteErrorResponse(w, errors.NewInvalidRequestError("missing server id"))
		return
	}

	userID := firstOf(r.Header.Get("X-User-ID"), r.URL.Query().Get("user"))
	allowed, err := h.authorizer.HasAccess(r.Context(), serverID, userID)
	if err != nil {
		errors.WriteErrorResponse(w, errors.NewInternalError("authorization check failed"))
		return
	}
	if !allowed {
		errors.WriteErrorResponse(w,
			errors.NewAPIError(errors.ErrorTypeForbidden, "Access denied", http.StatusForbidden))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("console upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	obs := console.NewObserver(&connSink{conn: conn}, h.observerQueue)

	sess, err := h.registry.Attach(r.Context(), serverID, obs)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrServerNotRunning):
			// Keep the connection so the client can still read
			// history and retry commands after a restart.
			_ = obs.Send(common.NewInfoFrame("Server is not running"))
		default:
			slog.Error("console attach failed",
				slog.String("server", serverID), slog.String("error", err.Error()))
			_ = obs.Send(common.NewErrorFrame("Console unavailable"))
			obs.Close()
			return
		}
	}

	slog.Info("console client connected",
		slog.String("server", serverID), slog.String("observer", obs.ID()),
		slog.String("remote", r.RemoteAddr))

	h.readConsole(r.Context(), conn, serverID, sess, obs)

	if sess != nil {
		sess.Detach(obs)
	} else {
		obs.Close()
	}
	slog.Info("console client disconnected",
		slog.String("server", serverID), slog.String("observer", obs.ID()))
}

func (h *Handler) readConsole(ctx context.Context, conn *websocket.Conn,
	serverID string, sess *console.Session, obs *console.Observer) {
	for {
		var msg common.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("console read ended",
					slog.String("server", serverID), slog.String("error", err.Error()))
			}
			return
		}

		switch msg.Type {
		case common.MessageTypeCommand:
			h.handleCommand(ctx, serverID, sess, obs, msg.Command)
		case common.MessageTypeGetHistory:
			h.sendHistory(ctx, serverID, obs)
		default:
			_ = obs.Send(common.NewErrorFrame("Unknown message type: " + msg.Type))
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, serverID string,
	sess *console.Session, obs *console.Observer, command string) {
	if command == "" {
		_ = obs.Send(common.NewErrorFrame("Empty command"))
		return
	}
	if sess == nil {
		_ = obs.Send(common.NewErrorFrame("Server is not running"))
		return
	}

	if err := sess.SubmitCommand(ctx, command); err != nil {
		slog.Warn("command failed", slog.String("server", serverID),
			slog.String("error", err.Error()))
		if errors.Is(err, errors.ErrServerNotRunning) {
			_ = obs.Send(common.NewErrorFrame("Server is not running"))
			return
		}
		_ = obs.Send(common.NewErrorFrame("Failed to send command"))
	}
}

// sendHistory replays recent lines newest first, mirroring the REST
// endpoint's ordering.
func (h *Handler) sendHistory(ctx context.Context, serverID string, obs *console.Observer) {
	entries, err := h.store.Recent(ctx, serverID, h.historyLimit)
	if err != nil {
		slog.Error("history read failed",
			slog.String("server", serverID), slog.String("error", err.Error()))
		_ = obs.Send(common.NewErrorFrame("History unavailable"))
		return
	}
	for _, e := range entries {
		if err := obs.Send(common.NewLogFrame(e.Message, e.Level, e.Timestamp)); err != nil {
			return
		}
	}
}

// HandleStats serves GET /ws/stats/:server_id, pushing resource
// samples on a fixed cadence until the client disconnects.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	serverID := router.Param(r, "server_id")
	if serverID == "" {
		errors.WriteErrorResponse(w, errors.NewInvalidRequestError("missing server id"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("stats upgrade failed", slog.String("error", err.Error()))
		return
	}

	sink := &connSink{conn: conn}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing meaningful; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sampler := stats.NewSampler(serverID, h.rt, h.provider, h.statsInterval)
	_ = sampler.Run(ctx, func(s stats.Sample) error {
		return sink.Send(common.NewStatsFrame(s))
	})

	_ = sink.Close()
	slog.Debug("stats client disconnected", slog.String("server", serverID))
}

// logEntry is the REST shape of one history line.
type logEntry struct {
	Message   string `json:"message"`
	LogLevel  string `json:"log_level"`
	Timestamp string `json:"timestamp"`
}

// HandleLogs serves GET /api/v1/servers/:server_id/logs?limit=N,
// returning recent lines newest first.
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	serverID := router.Param(r, "server_id")
	if serverID == "" {
		errors.WriteErrorResponse(w, errors.NewInvalidRequestError("missing server id"))
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errors.WriteErrorResponse(w, errors.NewInvalidRequestError("invalid limit"))
			return
		}
		limit = n
	}

	entries, err := h.store.Recent(r.Context(), serverID, limit)
	if err != nil {
		slog.Error("history read failed",
			slog.String("server", serverID), slog.String("error", err.Error()))
		errors.WriteErrorResponse(w, errors.NewInternalError("history unavailable"))
		return
	}

	out := make([]logEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntry{
			Message:   e.Message,
			LogLevel:  e.Level,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		})
	}
	common.WriteSuccessResponse(w, out)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
