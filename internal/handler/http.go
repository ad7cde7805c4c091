package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/playful-minds/progression/internal/domain"
	"github.com/playful-minds/progression/internal/service"
	"github.com/playful-minds/progression/internal/websocket"
)

// Handler provides HTTP handlers for the progression API
type Handler struct {
	progress   *service.ProgressionService
	sessions   *service.SessionService
	highscores *service.HighscoreService
	hub        *websocket.Hub
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	progress *service.ProgressionService,
	sessions *service.SessionService,
	highscores *service.HighscoreService,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		progress:   progress,
		sessions:   sessions,
		highscores: highscores,
		hub:        hub,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Progress operations
		r.Route("/progress", func(r chi.Router) {
			r.Post("/init", h.InitProgress)
			r.Post("/points", h.ApplyPoints)
			r.Get("/{playerID}/{activityKey}", h.GetProgress)
			r.Get("/{playerID}/{activityKey}/levels", h.GetLevelCount)
		})

		// Session operations
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/game", h.StartGameSession)
			r.Post("/game/{sessionID}/end", h.EndGameSession)
			r.Post("/user", h.StartUserSession)
			r.Post("/user/{sessionID}/touch", h.TouchUserSession)
			r.Post("/user/{sessionID}/end", h.EndUserSession)
		})

		// Highscore operations
		r.Route("/highscores/{activityKey}", func(r chi.Router) {
			r.Get("/", h.GetHighscores)
			r.Post("/", h.SubmitHighscore)
			r.Get("/qualifies", h.CheckQualifies)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
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

// writeServiceError maps service errors to HTTP status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	case domain.IsStorageError(err):
		h.logger.Error(op, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStorageUnavailable)
	default:
		h.logger.Error(op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// progressRequest carries the (player, activity) pair for progress calls
type progressRequest struct {
	PlayerID    int64  `json:"player_id"`
	ActivityKey string `json:"activity_key"`
	Points      int    `json:"points,omitempty"`
}

// InitProgress ensures a progress record exists at level 0, 0 points
func (h *Handler) InitProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.ActivityKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.progress.InitProgress(r.Context(), req.PlayerID, req.ActivityKey); err != nil {
		h.writeServiceError(w, "failed to init progress", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "initialized"})
}

// GetProgress returns the stored level and points for a player and activity
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	playerID, activityKey, ok := h.progressParams(w, r)
	if !ok {
		return
	}

	progress, err := h.progress.GetProgress(r.Context(), playerID, activityKey)
	if err != nil {
		h.writeServiceError(w, "failed to get progress", err)
		return
	}

	h.writeSuccess(w, progress)
}

// ApplyPoints deposits points and returns the updated progress
func (h *Handler) ApplyPoints(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.ActivityKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	progress, err := h.progress.ApplyPoints(r.Context(), req.PlayerID, req.ActivityKey, req.Points)
	if err != nil {
		h.writeServiceError(w, "failed to apply points", err)
		return
	}

	h.writeSuccess(w, progress)
}

// GetLevelCount returns the cumulative session-close level counter
func (h *Handler) GetLevelCount(w http.ResponseWriter, r *http.Request) {
	playerID, activityKey, ok := h.progressParams(w, r)
	if !ok {
		return
	}

	count, err := h.progress.LevelCount(r.Context(), playerID, activityKey)
	if err != nil {
		h.writeServiceError(w, "failed to get level count", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"player_id":    playerID,
		"activity_key": activityKey,
		"level_count":  count,
	})
}

func (h *Handler) progressParams(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	playerID, err := strconv.ParseInt(chi.URLParam(r, "playerID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return 0, "", false
	}
	activityKey := chi.URLParam(r, "activityKey")
	if activityKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return 0, "", false
	}
	return playerID, activityKey, true
}

// gameSessionRequest carries game session open parameters
type gameSessionRequest struct {
	PlayerID    int64  `json:"player_id"`
	ActivityKey string `json:"activity_key"`
	SessionType string `json:"session_type"`
	Level       int    `json:"level"`
}

// StartGameSession opens a game session and returns its handle
func (h *Handler) StartGameSession(w http.ResponseWriter, r *http.Request) {
	var req gameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	session, err := h.sessions.StartGameSession(r.Context(), req.PlayerID, req.ActivityKey, req.SessionType, req.Level)
	if err != nil {
		h.writeServiceError(w, "failed to start game session", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    session,
	})
}

// endGameSessionRequest carries game session close parameters
type endGameSessionRequest struct {
	PlayerID       int64  `json:"player_id"`
	ActivityKey    string `json:"activity_key"`
	LevelIncrement int    `json:"level_increment"`
}

// EndGameSession closes a game session; repeat closes are accepted as no-ops
func (h *Handler) EndGameSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req endGameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	session := &domain.GameSession{
		ID:          sessionID,
		PlayerID:    req.PlayerID,
		ActivityKey: req.ActivityKey,
	}
	if err := h.sessions.EndGameSession(r.Context(), session, req.LevelIncrement); err != nil {
		h.writeServiceError(w, "failed to end game session", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "closed"})
}

// userSessionRequest carries login session parameters
type userSessionRequest struct {
	PlayerID    int64  `json:"player_id"`
	SessionType string `json:"session_type"`
}

// StartUserSession opens a login session
func (h *Handler) StartUserSession(w http.ResponseWriter, r *http.Request) {
	var req userSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	session, err := h.sessions.StartUserSession(r.Context(), req.PlayerID, req.SessionType)
	if err != nil {
		h.writeServiceError(w, "failed to start user session", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    session,
	})
}

// TouchUserSession bumps the last-active timestamp on a login session
func (h *Handler) TouchUserSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.sessions.TouchUserSession(r.Context(), sessionID); err != nil {
		h.writeServiceError(w, "failed to touch user session", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "active"})
}

// EndUserSession records logout; repeat closes are accepted as no-ops
func (h *Handler) EndUserSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req userSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.sessions.EndUserSession(r.Context(), req.PlayerID, sessionID); err != nil {
		h.writeServiceError(w, "failed to end user session", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "closed"})
}

// GetHighscores returns an activity's board, or the placeholder entry when empty
func (h *Handler) GetHighscores(w http.ResponseWriter, r *http.Request) {
	activityKey := chi.URLParam(r, "activityKey")
	if activityKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entries, err := h.highscores.Load(r.Context(), activityKey)
	if err != nil {
		h.writeServiceError(w, "failed to load highscores", err)
		return
	}

	h.writeSuccess(w, entries)
}

// highscoreRequest carries a score submission
type highscoreRequest struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Score    int64  `json:"score"`
}

// SubmitHighscore records a score if it qualifies for the board
func (h *Handler) SubmitHighscore(w http.ResponseWriter, r *http.Request) {
	activityKey := chi.URLParam(r, "activityKey")
	if activityKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req highscoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	accepted, message, err := h.highscores.Record(r.Context(), activityKey, req.PlayerID, req.Name, req.Score)
	if err != nil {
		h.writeServiceError(w, "failed to record highscore", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"accepted": accepted,
		"message":  message,
	})
}

// CheckQualifies reports whether a score would enter the board
func (h *Handler) CheckQualifies(w http.ResponseWriter, r *http.Request) {
	activityKey := chi.URLParam(r, "activityKey")
	if activityKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	score, err := strconv.ParseInt(r.URL.Query().Get("score"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	qualifies, err := h.highscores.Qualifies(r.Context(), activityKey, score)
	if err != nil {
		h.writeServiceError(w, "failed to check qualification", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"score":     score,
		"qualifies": qualifies,
	})
}
