package throttle

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/JaimeStill/vigil/pkg/handlers"
	"github.com/JaimeStill/vigil/pkg/routes"
)

// Handler provides HTTP endpoints for throttle settings and daily state.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// LevelBody is the request and response body for the level endpoint.
type LevelBody struct {
	Level Level `json:"level"`
}

// NewHandler creates a Handler.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "throttle"),
	}
}

// Routes returns the route group for throttle endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/families/{familyId}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/throttle", Handler: h.GetLevel},
			{Method: "PUT", Pattern: "/throttle", Handler: h.PutLevel},
			{Method: "GET", Pattern: "/children/{childId}/throttle", Handler: h.State},
		},
	}
}

func (h *Handler) GetLevel(w http.ResponseWriter, r *http.Request) {
	level, err := h.sys.Level(r.Context(), r.PathValue("familyId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, LevelBody{Level: level})
}

func (h *Handler) PutLevel(w http.ResponseWriter, r *http.Request) {
	body, err := handlers.DecodeJSON[LevelBody](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.SetLevel(r.Context(), r.PathValue("familyId"), body.Level); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, body)
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	s, err := h.sys.State(r.Context(), r.PathValue("familyId"), r.PathValue("childId"), time.Now())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, s)
}
