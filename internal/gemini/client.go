package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"arch-render-studio/internal/render"
)

const defaultModel = "gemini-2.5-flash-image"

const systemInstruction = `You are an architectural visualization assistant.
You receive architectural drawings, photos, sketches or renders and return a single edited image.
Rules:
1. Preserve the building's geometry, openings and massing unless the instructions change them.
2. Follow the requested rendering style and materials precisely.
3. Always answer with an image. Never answer with text only.`

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the generateContent REST endpoint directly.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		model:      model,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

func (c *Client) Generate(ctx context.Context, req render.Request) (render.Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return render.Result{}, errors.New("prompt is empty")
	}

	payload := generateContentRequest{
		Contents:          []content{{Role: "user", Parts: buildParts(prompt, req.Images)}},
		SystemInstruction: &content{Role: "user", Parts: []part{{Text: systemInstruction}}},
		GenerationConfig: generationConfig{
			Temperature:        0.6,
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        newImageConfig(req.AspectRatio, req.Resolution),
		},
	}

	resp, err := c.generateContent(ctx, payload)
	if err != nil && payload.GenerationConfig.ImageConfig != nil {
		if isUnknownFieldError(err, "imageSize") || isUnknownFieldError(err, "imageConfig") {
			c.logger.Warn("image config rejected, retrying without it", "model", c.model, "err", err)
			payload.GenerationConfig.ImageConfig = nil
			resp, err = c.generateContent(ctx, payload)
		}
	}
	if err != nil {
		return render.Result{}, err
	}

	if len(resp.images) == 0 {
		retryPrompt := prompt + "\n\nReturn only the edited image (inlineData). Do not write text, JSON or code."
		payload.Contents = []content{{Role: "user", Parts: buildParts(retryPrompt, req.Images)}}
		retryResp, retryErr := c.generateContent(ctx, payload)
		if retryErr == nil && len(retryResp.images) > 0 {
			resp = retryResp
		}
	}

	if len(resp.images) == 0 {
		c.logger.Warn("model returned text only", "op", string(req.Operation), "text", truncate(resp.text, 200))
		return render.Result{}, render.ErrNoImage
	}

	return render.Result{Image: resp.images[0], Text: resp.text}, nil
}

func buildParts(prompt string, images []render.Image) []part {
	if len(images) <= 1 {
		parts := []part{{Text: prompt}}
		for _, img := range images {
			parts = append(parts, part{InlineData: toBlob(img)})
		}
		return parts
	}

	parts := []part{{Text: prompt + "\n\nImage order:\n1) target (edit this image)\n2) reference\nOthers: additional references."}}
	for i, img := range images {
		label := fmt.Sprintf("Image #%d (reference):", i+1)
		if i == 0 {
			label = "Image #1 (target):"
		}
		parts = append(parts, part{Text: label}, part{InlineData: toBlob(img)})
	}
	return parts
}

func toBlob(img render.Image) *blob {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &blob{
		Data:     base64.StdEncoding.EncodeToString(img.Data),
		MimeType: mimeType,
	}
}

func newImageConfig(aspectRatio, resolution string) *imageConfig {
	if aspectRatio == "" && resolution == "" {
		return nil
	}
	return &imageConfig{AspectRatio: aspectRatio, ImageSize: resolution}
}

type response struct {
	text   string
	images []render.Image
}

func (c *Client) generateContent(ctx context.Context, payload generateContentRequest) (response, error) {
	if c.httpClient == nil {
		return response{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return response{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return response{}, fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}

	return extractParts(decoded)
}

func extractParts(resp generateContentResponse) (response, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return response{}, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return response{}, nil
	}

	var out response
	var textBuilder strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData == nil || p.InlineData.Data == "" || p.InlineData.MimeType == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return response{}, fmt.Errorf("decode image: %w", err)
		}
		out.images = append(out.images, render.Image{Data: data, MimeType: p.InlineData.MimeType})
	}
	out.text = textBuilder.String()
	return out, nil
}

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64      `json:"temperature,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
