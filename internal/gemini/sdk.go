package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"arch-render-studio/internal/render"
)

type SDKOptions struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SDKClient is the google.golang.org/genai backed generator.
type SDKClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewSDK(ctx context.Context, opts SDKOptions) (*SDKClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("api key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimSpace(opts.BaseURL),
			APIVersion: strings.TrimSpace(opts.APIVersion),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SDKClient{client: client, model: model, logger: logger}, nil
}

func (c *SDKClient) Generate(ctx context.Context, req render.Request) (render.Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return render.Result{}, errors.New("prompt is empty")
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for i, img := range req.Images {
		label := fmt.Sprintf("Image #%d (reference):", i+1)
		if i == 0 {
			label = "Image #1 (target):"
		}
		if len(req.Images) > 1 {
			parts = append(parts, genai.NewPartFromText(label))
		}
		mimeType := img.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mimeType))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseModalities: []string{"IMAGE", "TEXT"},
		Temperature:        genai.Ptr[float32](0.6),
	}
	if req.AspectRatio != "" || req.Resolution != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio, ImageSize: req.Resolution}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return render.Result{}, fmt.Errorf("generate content: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			if p.Text != "" {
				text.WriteString(p.Text)
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return render.Result{
					Image: render.Image{Data: p.InlineData.Data, MimeType: p.InlineData.MIMEType},
					Text:  text.String(),
				}, nil
			}
		}
	}

	c.logger.Warn("model returned text only", "op", string(req.Operation), "text", truncate(text.String(), 200))
	return render.Result{}, render.ErrNoImage
}
