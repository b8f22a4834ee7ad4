package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/leaderboard"
	"github.com/MikeSquared-Agency/pulse/internal/monitor"
	"github.com/MikeSquared-Agency/pulse/internal/store"
	"github.com/MikeSquared-Agency/pulse/internal/tracker"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	store    store.DataStore
	queries  *leaderboard.Queries
	presence *tracker.Tracker
	voice    *tracker.Tracker
	clock    quartz.Clock
	router   chi.Router
	port     int
}

func NewServer(s store.DataStore, q *leaderboard.Queries, presence, voice *tracker.Tracker, port int) *Server {
	srv := &Server{
		store:    s,
		queries:  q,
		presence: presence,
		voice:    voice,
		clock:    quartz.NewReal(),
		port:     port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Route("/guilds/{guildID}", func(r chi.Router) {
			r.Get("/leaderboard/active", srv.handleLeaderboardActive)
			r.Get("/leaderboard/voice", srv.handleLeaderboardVoice)
			r.Get("/leaderboard/messages", srv.handleLeaderboardMessages)
			r.Get("/users/{userID}/series", srv.handleUserSeries)
			r.Get("/users/{userID}/current", srv.handleUserCurrent)
			r.Get("/monitor", srv.handleGetMonitor)
			r.Put("/monitor", srv.handlePutMonitor)
			r.Delete("/monitor", srv.handleDeleteMonitor)
			r.Delete("/stats", srv.handleResetStats)
		})
	})

	srv.router = r
	return srv
}

// SetClock replaces the wall clock (tests).
func (s *Server) SetClock(c quartz.Clock) {
	s.clock = c
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("starting HTTP API", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"service":       "pulse",
		"open_presence": s.presence.Count(),
		"open_voice":    s.voice.Count(),
	})
}

func (s *Server) handleLeaderboardActive(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 10)

	entries := s.queries.TopActive(r.Context(), guildID, days, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id": guildID,
		"days":     clampDays(days),
		"entries":  entries,
	})
}

func (s *Server) handleLeaderboardVoice(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 10)

	entries := s.queries.TopVoice(r.Context(), guildID, days, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id": guildID,
		"days":     clampDays(days),
		"entries":  entries,
	})
}

func (s *Server) handleLeaderboardMessages(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 10)
	channelID := r.URL.Query().Get("channel_id")

	resolved, entries := s.queries.TopMessages(r.Context(), guildID, days, limit, channelID)
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":   guildID,
		"channel_id": resolved,
		"days":       clampDays(days),
		"entries":    entries,
	})
}

func (s *Server) handleUserSeries(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	userID := chi.URLParam(r, "userID")
	days := queryInt(r, "days", 7)

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = store.MetricPresence
	}
	switch metric {
	case store.MetricPresence, store.MetricVoice, store.MetricMessages:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown metric"})
		return
	}

	series := s.queries.UserSeries(r.Context(), metric, guildID, userID, days)
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id": guildID,
		"user_id":  userID,
		"metric":   metric,
		"series":   series,
	})
}

type sessionView struct {
	Open      bool   `json:"open"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

func (s *Server) handleUserCurrent(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	userID := chi.URLParam(r, "userID")

	var presence sessionView
	if elapsed, ok := s.presence.Elapsed(guildID, userID); ok {
		presence = sessionView{Open: true, ElapsedMs: elapsed.Milliseconds()}
	}

	var voice sessionView
	if sess, ok := s.voice.Current(guildID, userID); ok {
		elapsed, _ := s.voice.Elapsed(guildID, userID)
		voice = sessionView{Open: true, ElapsedMs: elapsed.Milliseconds(), ChannelID: sess.Dimension}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id": guildID,
		"user_id":  userID,
		"presence": presence,
		"voice":    voice,
	})
}

type monitorView struct {
	GuildID          string     `json:"guild_id"`
	UserID           string     `json:"user_id"`
	ChannelID        string     `json:"channel_id"`
	Language         string     `json:"language"`
	LastStatus       string     `json:"last_status,omitempty"`
	LastStatusAt     *time.Time `json:"last_status_at,omitempty"`
	LastActivity     string     `json:"last_activity,omitempty"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	LastCustomStatus string     `json:"last_custom_status,omitempty"`
	TotalActiveMs    int64      `json:"total_active_ms"`
	CurrentSessionMs *int64     `json:"current_session_ms,omitempty"`
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	cfg, err := s.store.GetMonitor(r.Context(), guildID)
	if err != nil {
		slog.Error("monitor read failed", "guild", guildID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no monitor configured"})
		return
	}

	total, err := s.store.SumUserAll(r.Context(), store.MetricPresence, cfg.GuildID, cfg.UserID)
	if err != nil {
		slog.Error("lifetime total read failed", "guild", guildID, "error", err)
	}

	view := monitorView{
		GuildID:          cfg.GuildID,
		UserID:           cfg.UserID,
		ChannelID:        cfg.ChannelID,
		Language:         cfg.Language,
		LastStatus:       cfg.LastStatus,
		LastStatusAt:     cfg.LastStatusAt,
		LastActivity:     cfg.LastActivity,
		LastActivityAt:   cfg.LastActivityAt,
		LastCustomStatus: cfg.LastCustomStatus,
		TotalActiveMs:    total,
	}
	if cfg.SessionStart != nil {
		ms := s.clock.Now().Sub(*cfg.SessionStart).Milliseconds()
		view.CurrentSessionMs = &ms
	}
	writeJSON(w, http.StatusOK, view)
}

type putMonitorRequest struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Language  string `json:"language"`
}

func (s *Server) handlePutMonitor(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var req putMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.UserID == "" || req.ChannelID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and channel_id are required"})
		return
	}
	if req.Language == "" {
		req.Language = monitor.DefaultLanguage
	}
	if !monitor.SupportedLanguage(req.Language) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported language"})
		return
	}

	cfg := store.Monitor{
		GuildID:   guildID,
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		Language:  req.Language,
	}

	// Switching language or channel for the same member keeps the narrative
	// state; switching member starts fresh.
	if existing, err := s.store.GetMonitor(r.Context(), guildID); err == nil && existing != nil && existing.UserID == req.UserID {
		cfg.SessionStart = existing.SessionStart
		cfg.LastStatus = existing.LastStatus
		cfg.LastStatusAt = existing.LastStatusAt
		cfg.LastActivity = existing.LastActivity
		cfg.LastActivityAt = existing.LastActivityAt
		cfg.LastCustomStatus = existing.LastCustomStatus
	}

	if err := s.store.PutMonitor(r.Context(), cfg); err != nil {
		slog.Error("monitor write failed", "guild", guildID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":   guildID,
		"user_id":    cfg.UserID,
		"channel_id": cfg.ChannelID,
		"language":   cfg.Language,
	})
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	if err := s.store.DeleteMonitor(r.Context(), guildID); err != nil {
		slog.Error("monitor delete failed", "guild", guildID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	if err := s.store.ResetGuild(r.Context(), guildID); err != nil {
		slog.Error("guild reset failed", "guild", guildID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	slog.Info("guild stats reset", "guild", guildID)
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func clampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > leaderboard.MaxWindowDays {
		return leaderboard.MaxWindowDays
	}
	return days
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
