package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/vigil/internal/config"
	"github.com/JaimeStill/vigil/pkg/openapi"
	"github.com/JaimeStill/vigil/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, cfg *config.Config) error {
	groups := []routes.Group{
		domain.Prompts.Handler().Routes(),
		domain.Screenshots.Handler().Routes(),
		domain.Classify.Handler().Routes(),
		domain.Flags.Handler().Routes(),
		domain.Approvals.Handler().Routes(),
		domain.Thresholds.Handler().Routes(),
		domain.Throttle.Handler().Routes(),
	}
	routes.Register(mux, groups...)

	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version)
	spec.SetDescription(cfg.API.OpenAPI.Description)
	spec.AddRoutes(cfg.API.BasePath, groups...)

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		return fmt.Errorf("marshal openapi spec: %w", err)
	}
	mux.HandleFunc("GET /openapi.json", openapi.ServeSpec(data))
	return nil
}
