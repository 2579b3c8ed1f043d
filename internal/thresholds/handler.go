package thresholds

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/vigil/pkg/handlers"
	"github.com/JaimeStill/vigil/pkg/routes"
)

// Handler provides HTTP endpoints for family threshold settings.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "thresholds"),
	}
}

// Routes returns the route group for threshold endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/families/{familyId}/thresholds",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Get},
			{Method: "PUT", Pattern: "", Handler: h.Put},
		},
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sys.Settings(r.Context(), r.PathValue("familyId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	s, err := handlers.DecodeJSON[Settings](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	saved, err := h.sys.Save(r.Context(), r.PathValue("familyId"), s)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, saved)
}
