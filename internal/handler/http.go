package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/events"
	"github.com/bancho-server/internal/packet"
	"github.com/bancho-server/internal/service"
	"github.com/bancho-server/internal/session"
	"github.com/bancho-server/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBanchoBody   = 1 << 20
	maxSubmitMemory = 32 << 20
)

// ScoreReader loads stored scores
type ScoreReader interface {
	GetScore(ctx context.Context, id int64) (*domain.Score, error)
}

// ReplayReader opens stored replay files
type ReplayReader interface {
	Open(ctx context.Context, hash string) (io.ReadCloser, error)
}

// Deps are the services the HTTP layer dispatches to
type Deps struct {
	Sessions    *session.Registry
	Events      events.Publisher
	Submissions *service.SubmissionService
	Scoreboard  *service.ScoreboardService
	Ranking     *service.RankingService
	Auth        service.Authenticator
	Scores      ScoreReader
	Replays     ReplayReader
	Hub         *websocket.Hub
	// Ready reports whether the backing stores are reachable; nil means always ready
	Ready func(ctx context.Context) error
}

// Handler provides the bancho, web and API endpoints
type Handler struct {
	deps   Deps
	config *config.Config
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// game client endpoints
	r.Post("/", h.Bancho)
	r.Route("/web", func(r chi.Router) {
		r.Post("/osu-submit-modular-selector.php", h.SubmitScore)
		r.Get("/osu-getreplay.php", h.GetReplay)
		r.Get("/osu-osz2-getscores.php", h.GetScores)
	})

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(corsMiddleware)
		r.Get("/rankings/{mode}", h.GetRankings)
		r.Get("/users/{userID}/stats", h.GetUserStats)
		r.Get("/online", h.GetOnline)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func (h *Handler) writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Bancho serves the polling endpoint. Without a token the body is a login
// request; with one it is a packet stream and the response drains the
// session's outbound queue.
func (h *Handler) Bancho(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("cho-protocol", strconv.Itoa(int(h.config.Bancho.ProtocolVersion)))
	w.Header().Set("Content-Type", "application/octet-stream")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBanchoBody))
	if err != nil {
		h.logger.Warn("failed to read bancho request", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Bancho.PublishTimeout)
	defer cancel()

	token := r.Header.Get("osu-token")
	if token == "" {
		h.login(ctx, w, r, body)
		return
	}

	pr, ok := h.deps.Sessions.Lookup(token)
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	pr.Lock()
	defer pr.Unlock()
	pr.Touch()

	reader := packet.NewReader(body)
	for reader.Remaining() >= packet.HeaderSize {
		p, err := packet.Decode(reader)
		if err != nil {
			h.logger.Debug("stopping at malformed packet", "user_id", pr.UserID(), "error", err)
			break
		}
		ev := events.NewPacketReceived(events.PacketReceived{Presence: pr, Packet: p})
		if err := h.deps.Events.Publish(ctx, ev); err != nil {
			h.logger.Warn("packet dispatch interrupted", "user_id", pr.UserID(), "id", p.ID.String(), "error", err)
			break
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write(pr.Queue().Drain())
}

func (h *Handler) login(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte) {
	pr := h.deps.Sessions.Create(session.Identity{IP: clientIP(r)})
	reply := packet.NewWriter()

	ev := events.NewLoginRequest(events.LoginRequest{Presence: pr, Body: body, Reply: reply})
	if err := h.deps.Events.Publish(ctx, ev); err != nil {
		h.logger.Error("login dispatch failed", "error", err)
		h.deps.Sessions.Remove(pr.Token())
		reply.Reset()
		packet.LoginReply(packet.LoginServerError).EncodeTo(reply)
	}

	w.Header().Set("cho-token", pr.Token())
	w.WriteHeader(http.StatusOK)
	w.Write(reply.Bytes())
}

// SubmitScore handles the multipart score submission form
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSubmitMemory); err != nil {
		h.logger.Warn("invalid submission form", "error", err)
		h.writeText(w, service.ReplyFailure)
		return
	}

	req := service.SubmitRequest{
		Score:      r.FormValue("score"),
		IV:         r.FormValue("iv"),
		OsuVersion: r.FormValue("osuver"),
		Password:   r.FormValue("pass"),
	}
	if f, _, err := r.FormFile("score"); err == nil {
		req.Replay, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			h.logger.Warn("failed to read replay upload", "error", err)
			h.writeText(w, service.ReplyFailure)
			return
		}
	}

	h.writeText(w, h.deps.Submissions.Submit(r.Context(), req))
}

// GetScores serves the in-game beatmap scoreboard
func (h *Handler) GetScores(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := strconv.Atoi(q.Get("m"))
	if err != nil || !domain.PlayMode(mode).Valid() {
		h.writeText(w, service.ReplyFailure)
		return
	}
	var mods, board uint64
	if s := q.Get("mods"); s != "" {
		if mods, err = strconv.ParseUint(s, 10, 32); err != nil {
			h.writeText(w, service.ReplyFailure)
			return
		}
	}
	if s := q.Get("v"); s != "" {
		if board, err = strconv.ParseUint(s, 10, 8); err != nil {
			h.writeText(w, service.ReplyFailure)
			return
		}
	}

	h.writeText(w, h.deps.Scoreboard.Scores(r.Context(), service.ScoreboardRequest{
		Username:    q.Get("us"),
		PasswordMD5: q.Get("ha"),
		BeatmapMD5:  q.Get("c"),
		Mode:        domain.PlayMode(mode),
		Mods:        domain.Mods(mods),
		Type:        service.BoardType(board),
	}))
}

// GetReplay streams the replay of a stored score
func (h *Handler) GetReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, err := h.deps.Auth.Authenticate(r.Context(), q.Get("u"), q.Get("h")); err != nil {
		h.writeText(w, service.ReplyBadAuth)
		return
	}

	id, err := strconv.ParseInt(q.Get("c"), 10, 64)
	if err != nil {
		http.Error(w, "invalid score id", http.StatusBadRequest)
		return
	}
	score, err := h.deps.Scores.GetScore(r.Context(), id)
	if err != nil {
		h.replayError(w, err)
		return
	}
	if score.ReplayHash == "" {
		http.NotFound(w, r)
		return
	}

	rc, err := h.deps.Replays.Open(r.Context(), score.ReplayHash)
	if err != nil {
		h.replayError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+score.ReplayHash+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("replay download interrupted", "score_id", id, "error", err)
	}
}

func (h *Handler) replayError(w http.ResponseWriter, err error) {
	if domain.IsNotFoundError(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("failed to load replay", "error", err)
	http.Error(w, domain.ErrInternalError.Error(), http.StatusInternalServerError)
}

// GetRankings returns the best users of a mode by performance points
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := h.config.Ranking.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = min(n, h.config.Ranking.MaxLimit)
	}

	top, err := h.deps.Ranking.Top(r.Context(), mode, limit)
	if err != nil {
		h.logger.Error("failed to get rankings", "mode", mode.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	total, err := h.deps.Ranking.Count(r.Context(), mode)
	if err != nil {
		h.logger.Error("failed to count ranked users", "mode", mode.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, map[string]any{
		"mode":    mode.String(),
		"total":   total,
		"entries": top,
	})
}

// GetUserStats returns a user's stats for a mode (?mode=, default osu)
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	mode := domain.ModeOsu
	if s := r.URL.Query().Get("mode"); s != "" {
		if mode, err = domain.ParseMode(s); err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	stats, err := h.deps.Ranking.UserStats(r.Context(), userID, mode)
	if err != nil {
		h.logger.Error("failed to get user stats", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, map[string]any{
		"user_id":      userID,
		"mode":         mode.String(),
		"rank":         stats.Position,
		"pp":           stats.PerformancePoints,
		"accuracy":     stats.Accuracy,
		"play_count":   stats.PlayCount,
		"ranked_score": stats.RankedScore,
		"total_score":  stats.TotalScore,
	})
}

// GetOnline lists the logged in users
func (h *Handler) GetOnline(w http.ResponseWriter, r *http.Request) {
	type online struct {
		UserID   int64  `json:"user_id"`
		Username string `json:"username"`
		Mode     string `json:"mode"`
	}
	sessions := h.deps.Sessions.Snapshot()
	out := make([]online, 0, len(sessions))
	for _, pr := range sessions {
		out = append(out, online{UserID: pr.UserID(), Username: pr.Username(), Mode: pr.Status().Mode.String()})
	}
	h.writeSuccess(w, out)
}

// HandleWebSocket handles live feed upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.deps.Hub, h.logger, w, r)
}

// GetWebSocketStats returns live feed connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	subscribers := make(map[string]int, len(domain.Modes))
	for _, mode := range domain.Modes {
		subscribers[mode.String()] = h.deps.Hub.GetSubscriberCount(mode.String())
	}
	h.writeSuccess(w, map[string]any{
		"total_connections": h.deps.Hub.GetTotalConnections(),
		"subscribers":       subscribers,
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"status": "healthy",
		"online": h.deps.Sessions.Len(),
	})
}

// ReadyCheck reports whether the backing stores are reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		if err := h.deps.Ready(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, errors.New("not ready"))
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
