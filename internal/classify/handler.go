package classify

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/vigil/internal/queue"
	"github.com/JaimeStill/vigil/internal/screenshots"
	"github.com/JaimeStill/vigil/pkg/handlers"
	"github.com/JaimeStill/vigil/pkg/routes"
)

// Handler exposes reclassification over HTTP.
type Handler struct {
	orc    *Orchestrator
	logger *slog.Logger
}

func NewHandler(orc *Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{
		orc:    orc,
		logger: logger.With("handler", "classify"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/screenshots",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{id}/reclassify", Handler: h.Reclassify},
		},
	}
}

func (h *Handler) Reclassify(w http.ResponseWriter, r *http.Request) {
	s, err := h.orc.Reclassify(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, mapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, s)
}

func mapHTTPStatus(err error) int {
	if errors.Is(err, queue.ErrNotConnected) {
		return http.StatusServiceUnavailable
	}
	return screenshots.MapHTTPStatus(err)
}
