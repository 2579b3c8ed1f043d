package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JaimeStill/go-agents/pkg/agent"
	"github.com/JaimeStill/go-agents/pkg/client"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
	"github.com/JaimeStill/go-agents/pkg/format"
)

// maxErrorBody bounds how much of a failed response body is kept in a StatusError.
const maxErrorBody = 512

// Request is a single image prompt sent to the vision model.
type Request struct {
	System    string
	Prompt    string
	Image     []byte
	MediaType string
}

// Model completes a vision request and returns the raw text content.
type Model interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// AgentFactory creates a go-agents agent from configuration.
type AgentFactory func(cfg *gaconfig.AgentConfig) (agent.Agent, error)

// AgentModel completes vision requests through go-agents. Each call gets its
// own agent so the stage system prompt travels with the request.
type AgentModel struct {
	cfg      gaconfig.AgentConfig
	newAgent AgentFactory
}

// NewAgentModel creates a Model backed by go-agents. A nil factory uses
// agent.New. The agent's own retry loop is disabled; the classifier owns
// retries, timeouts, and the circuit breaker.
func NewAgentModel(cfg *gaconfig.AgentConfig, factory AgentFactory) (*AgentModel, error) {
	if factory == nil {
		factory = agent.New
	}

	c := *cfg
	clientCfg := gaconfig.DefaultClientConfig()
	if cfg.Client != nil {
		*clientCfg = *cfg.Client
	}
	clientCfg.Retry.MaxRetries = 0
	c.Client = clientCfg

	if _, err := factory(&c); err != nil {
		return nil, fmt.Errorf("create vision agent: %w", err)
	}

	return &AgentModel{cfg: c, newAgent: factory}, nil
}

func (m *AgentModel) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Image) == 0 {
		return "", ErrEmptyImage
	}

	cfg := m.cfg
	cfg.SystemPrompt = req.System

	a, err := m.newAgent(&cfg)
	if err != nil {
		return "", fmt.Errorf("create vision agent: %w", err)
	}

	images := []format.Image{{Data: req.Image, Format: imageFormat(req.MediaType)}}
	opts := map[string]any{
		"vision_options": map[string]any{"detail": "high"},
	}

	resp, err := a.Vision(ctx, req.Prompt, images, opts)
	if err != nil {
		return "", statusError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// imageFormat maps a media type such as image/jpeg to the go-agents format name.
func imageFormat(mediaType string) string {
	if sub, ok := strings.CutPrefix(strings.ToLower(mediaType), "image/"); ok && sub != "" {
		return sub
	}
	return "png"
}

func statusError(err error) error {
	var httpErr *client.HTTPStatusError
	if !errors.As(err, &httpErr) {
		return err
	}
	body := string(httpErr.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{StatusCode: httpErr.StatusCode, Body: body}
}
