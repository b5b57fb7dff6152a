package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"arch-render-studio/internal/render"
)

type BackendOptions struct {
	Backend    string // "rest" | "sdk"
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewGenerator(ctx context.Context, opts BackendOptions) (render.Generator, error) {
	switch opts.Backend {
	case "", "rest":
		return New(Options{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			APIVersion: opts.APIVersion,
			Model:      opts.Model,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		}), nil
	case "sdk":
		return NewSDK(ctx, SDKOptions{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			APIVersion: opts.APIVersion,
			Model:      opts.Model,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown generation backend %q", opts.Backend)
	}
}
