package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
	"github.com/starfield/server/internal/streaming"
)

// UniverseHandlers serves read-only views of the engine plus the
// single-observer visibility query.
type UniverseHandlers struct {
	manager   *streaming.Manager
	profiler  *performance.Profiler
	validator *validator.Validate
	logger    *slog.Logger
}

// NewUniverseHandlers creates a new UniverseHandlers instance
func NewUniverseHandlers(manager *streaming.Manager, profiler *performance.Profiler, logger *slog.Logger) *UniverseHandlers {
	return &UniverseHandlers{
		manager:   manager,
		profiler:  profiler,
		validator: validator.New(),
		logger:    logger,
	}
}

// UniverseResponse is the body of GET /api/universe
type UniverseResponse struct {
	streaming.Info
	Settings streaming.Settings `json:"settings"`
}

// StatsResponse is the body of GET /api/universe/stats
type StatsResponse struct {
	streaming.Stats
	Profiler *performance.Snapshot `json:"profiler,omitempty"`
}

// ChunkResponse is the body of GET /api/universe/chunks/{cx}/{cy}/{cz}
type ChunkResponse struct {
	Coord  starmap.ChunkCoord `json:"coord"`
	Origin starmap.Vec3       `json:"origin"`
	Stars  []procedural.Star  `json:"stars"`
}

// VisibleRequest is the body of POST /api/universe/visible
type VisibleRequest struct {
	Position *starmap.Vec3 `json:"position" validate:"required"`
}

// GetUniverse handles GET /api/universe
func (h *UniverseHandlers) GetUniverse(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, UniverseResponse{
		Info:     h.manager.Info(),
		Settings: h.manager.Settings(),
	})
}

// GetStats handles GET /api/universe/stats
func (h *UniverseHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stats: h.manager.Stats()}
	if h.profiler.IsEnabled() {
		snap := h.profiler.Snapshot()
		resp.Profiler = &snap
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetChunk handles GET /api/universe/chunks/{cx}/{cy}/{cz}. It never adds
// the chunk to the cache.
func (h *UniverseHandlers) GetChunk(w http.ResponseWriter, r *http.Request) {
	var coord starmap.ChunkCoord
	for _, part := range []struct {
		name string
		dst  *int64
	}{{"cx", &coord.X}, {"cy", &coord.Y}, {"cz", &coord.Z}} {
		v, err := strconv.ParseInt(r.PathValue(part.name), 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid chunk coordinate "+part.name)
			return
		}
		*part.dst = v
	}

	stars := h.manager.Peek(coord)
	if stars == nil {
		stars = []procedural.Star{}
	}
	respondJSON(w, http.StatusOK, ChunkResponse{
		Coord:  coord,
		Origin: coord.Origin(h.manager.Settings().Generation.ChunkSize),
		Stars:  stars,
	})
}

// PostVisible handles POST /api/universe/visible against the default observer
func (h *UniverseHandlers) PostVisible(w http.ResponseWriter, r *http.Request) {
	var req VisibleRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}
	if !req.Position.IsFinite() {
		respondWithError(w, http.StatusBadRequest, "Position must be finite")
		return
	}

	result := h.manager.UpdateVisible(*req.Position)
	if result.Stars == nil {
		result.Stars = []procedural.Star{}
	}
	if result.ChunksGenerated > 0 {
		h.logger.Debug("visibility query generated chunks",
			"camera_chunk", result.CameraChunk.String(),
			"generated", result.ChunksGenerated,
		)
	}
	respondJSON(w, http.StatusOK, result)
}
