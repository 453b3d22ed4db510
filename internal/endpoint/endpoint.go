package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Hunga9k50doker/spheron/internal/config"
)

const fallbackMessage = "using statically configured API origin"

// Resolution is the discovered API origin plus the operator message shipped
// with the manifest.
type Resolution struct {
	Origin  string
	Message string
}

// Resolver performs the one-shot base-URL check against the remote endpoint
// manifest.
type Resolver struct {
	cfg    config.APIConfig
	client *resty.Client
	logger *slog.Logger
}

// NewResolver constructs a resolver from the API configuration.
func NewResolver(cfg config.APIConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		logger: logger,
	}
}

type manifest struct {
	Spheron   string `json:"spheron"`
	Copyright string `json:"copyright"`
}

// Resolve returns the live API origin. With advanced anti-detection off the
// static base URL is returned directly; otherwise the manifest is fetched and
// its origin field consumed, falling back to the static base URL when the
// fetch fails or the field is absent.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	if !r.cfg.AdvancedAntiDetection {
		return Resolution{Origin: r.cfg.BaseURL, Message: fallbackMessage}, nil
	}

	res, err := r.fetch(ctx)
	if err != nil {
		if r.cfg.BaseURL == "" {
			return Resolution{}, err
		}
		r.logger.Warn("endpoint discovery failed, falling back to configured origin", "error", err)
		return Resolution{Origin: r.cfg.BaseURL, Message: fallbackMessage}, nil
	}

	return res, nil
}

func (r *Resolver) fetch(ctx context.Context) (Resolution, error) {
	resp, err := r.client.R().SetContext(ctx).Get(r.cfg.ManifestURL)
	if err != nil {
		return Resolution{}, fmt.Errorf("fetch endpoint manifest: %w", err)
	}
	if resp.IsError() {
		return Resolution{}, fmt.Errorf("fetch endpoint manifest: status %d", resp.StatusCode())
	}

	var m manifest
	if err := json.Unmarshal(resp.Body(), &m); err != nil {
		return Resolution{}, fmt.Errorf("decode endpoint manifest: %w", err)
	}
	if m.Spheron == "" {
		return Resolution{}, fmt.Errorf("endpoint manifest carries no origin")
	}

	return Resolution{Origin: m.Spheron, Message: m.Copyright}, nil
}
