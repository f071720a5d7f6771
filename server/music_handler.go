package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"Resona/core/events"
	"Resona/core/player"
	"Resona/logger"
	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/mux"
)

// MusicHandler exposes the guild-scoped player control endpoints.
type MusicHandler struct {
	service  *player.Service
	hub      *events.Hub
	presence events.VoicePresenceFunc // nil disables voice enrichment
	apiKey   string
}

func NewMusicHandler(service *player.Service, hub *events.Hub, presence events.VoicePresenceFunc, apiKey string) *MusicHandler {
	return &MusicHandler{
		service:  service,
		hub:      hub,
		presence: presence,
		apiKey:   apiKey,
	}
}

// Register mounts all music routes under /botapi/music/{guild_id}.
func (h *MusicHandler) Register(router *mux.Router) {
	r := router.PathPrefix("/botapi/music/{guild_id}").Subrouter()

	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/extract", h.handleExtract).Methods(http.MethodGet)
	r.HandleFunc("/events", h.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/play", h.requireAPIKey(h.handlePlay)).Methods(http.MethodPost)
	r.HandleFunc("/play-track/{index}", h.requireAPIKey(h.handlePlayTrackAt)).Methods(http.MethodPost)
	r.HandleFunc("/pause", h.requireAPIKey(h.handlePauseResume)).Methods(http.MethodPost)
	r.HandleFunc("/queue", h.requireAPIKey(h.handleQueue)).Methods(http.MethodGet)
	r.HandleFunc("/queue", h.requireAPIKey(h.handleClearQueue)).Methods(http.MethodDelete)
	r.HandleFunc("/queue/{index}", h.requireAPIKey(h.handleRemoveTrack)).Methods(http.MethodDelete)
	r.HandleFunc("/volume/{volume}", h.requireAPIKey(h.handleSetVolume)).Methods(http.MethodPost)
	r.HandleFunc("/seek", h.requireAPIKey(h.handleSeek)).Methods(http.MethodPost)
	r.HandleFunc("/skip", h.requireAPIKey(h.handleSkip)).Methods(http.MethodPost)
	r.HandleFunc("/previous", h.requireAPIKey(h.handlePrevious)).Methods(http.MethodPost)
	r.HandleFunc("/shuffle", h.requireAPIKey(h.handleShuffle)).Methods(http.MethodPost)
	r.HandleFunc("/repeat/{mode}", h.requireAPIKey(h.handleSetRepeatMode)).Methods(http.MethodPost)
	r.HandleFunc("/settings", h.requireAPIKey(h.handleGetSettings)).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.requireAPIKey(h.handleUpdateSettings)).Methods(http.MethodPost)
	r.HandleFunc("/filter/{filter_name}", h.requireAPIKey(h.handleToggleFilter)).Methods(http.MethodPost)
	r.HandleFunc("/reset", h.requireAPIKey(h.handleReset)).Methods(http.MethodPost)
}

func guildIDFromRequest(w http.ResponseWriter, r *http.Request) (snowflake.ID, bool) {
	guildID, err := snowflake.Parse(mux.Vars(r)["guild_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid guild id")
		return 0, false
	}
	return guildID, true
}

func (h *MusicHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), guildID)
	if err != nil {
		writeServiceError(w, err, guildID, "status")
		return
	}

	if h.presence != nil {
		if userID, err := snowflake.Parse(r.URL.Query().Get("userId")); err == nil {
			status.InVoiceChannel = h.presence(guildID, userID)
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *MusicHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	tracks, err := h.service.Search(r.Context(), query, r.URL.Query().Get("mode"), limit)
	if err != nil {
		writeServiceError(w, err, guildID, "search")
		return
	}
	if tracks == nil {
		tracks = []model.Track{}
	}

	writeJSON(w, http.StatusOK, tracks)
}

func (h *MusicHandler) handleExtract(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	track, err := h.service.Extract(r.Context(), url)
	if err != nil {
		// an unresolvable URL is absence, not a bad request
		writeError(w, http.StatusNotFound, "Track not found")
		logger.Debug("extract failed", logger.ErrorField(err), logger.Guild(guildID))
		return
	}

	writeJSON(w, http.StatusOK, track)
}

type playRequest struct {
	URL       string          `json:"url"`
	Requester model.Requester `json:"requester"`
}

func (h *MusicHandler) handlePlay(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.Play(r.Context(), guildID, req.URL, req.Requester)
	if err != nil {
		writeServiceError(w, err, guildID, "play")
		return
	}

	logger.Info("track queued",
		logger.Guild(guildID),
		logger.String("title", entry.Track.Title),
		logger.User(entry.Requester.ID))
	writeJSON(w, http.StatusOK, entry)
}

func (h *MusicHandler) handlePlayTrackAt(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid track index")
		return
	}

	if err := h.service.PlayTrackAt(r.Context(), guildID, index); err != nil {
		writeServiceError(w, err, guildID, "play-track")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handlePauseResume(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	state, err := h.service.PauseResume(r.Context(), guildID)
	if err != nil {
		writeServiceError(w, err, guildID, "pause")
		return
	}

	writeJSON(w, http.StatusOK, map[string]model.PlayerState{"state": state})
}

func (h *MusicHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	queue, err := h.service.Queue(r.Context(), guildID)
	if err != nil {
		writeServiceError(w, err, guildID, "queue")
		return
	}
	if queue == nil {
		queue = []model.QueueEntry{}
	}

	writeJSON(w, http.StatusOK, queue)
}

func (h *MusicHandler) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearQueue(r.Context(), guildID); err != nil {
		writeServiceError(w, err, guildID, "clear-queue")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid track index")
		return
	}

	if err := h.service.RemoveTrack(r.Context(), guildID, index); err != nil {
		writeServiceError(w, err, guildID, "remove-track")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	volume, err := strconv.Atoi(mux.Vars(r)["volume"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid volume")
		return
	}

	if err := h.service.SetVolume(r.Context(), guildID, volume); err != nil {
		writeServiceError(w, err, guildID, "volume")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"volume": volume})
}

type seekRequest struct {
	Position float64 `json:"position"` // seconds
}

func (h *MusicHandler) handleSeek(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position < 0 {
		writeError(w, http.StatusBadRequest, "Invalid seek position")
		return
	}

	if err := h.service.Seek(r.Context(), guildID, req.Position); err != nil {
		writeServiceError(w, err, guildID, "seek")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handleSkip(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Skip(r.Context(), guildID); err != nil {
		writeServiceError(w, err, guildID, "skip")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Previous(r.Context(), guildID); err != nil {
		writeServiceError(w, err, guildID, "previous")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handleShuffle(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Shuffle(r.Context(), guildID); err != nil {
		writeServiceError(w, err, guildID, "shuffle")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handleSetRepeatMode(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	mode, err := h.service.SetRepeatMode(r.Context(), guildID, mux.Vars(r)["mode"])
	if err != nil {
		writeServiceError(w, err, guildID, "repeat")
		return
	}

	writeJSON(w, http.StatusOK, map[string]model.RepeatMode{"repeatMode": mode})
}

func (h *MusicHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	settings, err := h.service.Settings(r.Context(), guildID)
	if err != nil {
		writeServiceError(w, err, guildID, "settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *MusicHandler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	var settings model.PlayerSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateSettings(r.Context(), guildID, settings); err != nil {
		writeServiceError(w, err, guildID, "settings")
		return
	}

	settings.GuildID = guildID
	writeJSON(w, http.StatusOK, settings)
}

func (h *MusicHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Reset(r.Context(), guildID); err != nil {
		writeServiceError(w, err, guildID, "reset")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (h *MusicHandler) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromRequest(w, r)
	if !ok {
		return
	}

	var enable bool
	if err := json.NewDecoder(r.Body).Decode(&enable); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status, err := h.service.ToggleFilter(r.Context(), guildID, mux.Vars(r)["filter_name"], enable)
	if err != nil {
		writeServiceError(w, err, guildID, "filter")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
