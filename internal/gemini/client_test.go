package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arch-render-studio/internal/render"
)

func imageResponse(t *testing.T, data []byte) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role": "model",
				"parts": []any{
					map[string]any{"text": "done"},
					map[string]any{"inlineData": map[string]any{
						"mimeType": "image/png",
						"data":     base64.StdEncoding.EncodeToString(data),
					}},
				},
			},
		}},
	})
	require.NoError(t, err)
	return string(body)
}

func TestGenerateSendsImagesAndDecodesResult(t *testing.T) {
	var got generateContentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, imageResponse(t, []byte("png-bytes")))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "secret", BaseURL: srv.URL, Model: "test-model", HTTPClient: srv.Client()})
	res, err := c.Generate(context.Background(), render.Request{
		Operation:  render.OpRender,
		Prompt:     "modern villa",
		Images:     []render.Image{{Data: []byte("src"), MimeType: "image/jpeg"}, {Data: []byte("ref"), MimeType: "image/png"}},
		Resolution: "2K",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("png-bytes"), res.Image.Data)
	assert.Equal(t, "image/png", res.Image.MimeType)
	assert.Equal(t, "done", res.Text)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 5)
	assert.Contains(t, parts[0].Text, "modern villa")
	assert.Equal(t, "Image #1 (target):", parts[1].Text)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("src")), parts[2].InlineData.Data)
	require.NotNil(t, got.GenerationConfig.ImageConfig)
	assert.Equal(t, "2K", got.GenerationConfig.ImageConfig.ImageSize)
}

func TestGenerateRetriesOnceWhenTextOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"I cannot"}]}}]}`)
			return
		}
		_, _ = io.WriteString(w, imageResponse(t, []byte("second")))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := c.Generate(context.Background(), render.Request{Prompt: "p", Images: []render.Image{{Data: []byte("x")}}})
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), res.Image.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateNoImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"nope"}]}}]}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Generate(context.Background(), render.Request{Prompt: "p"})
	assert.ErrorIs(t, err, render.ErrNoImage)
}

func TestGenerateDropsRejectedImageConfig(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateContentRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		calls.Add(1)
		if req.GenerationConfig.ImageConfig != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `Invalid JSON payload received. Unknown name "imageSize"`)
			return
		}
		_, _ = io.WriteString(w, imageResponse(t, []byte("ok")))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := c.Generate(context.Background(), render.Request{Prompt: "p", Resolution: "4K"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), res.Image.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "quota")
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Generate(context.Background(), render.Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota")
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	c := New(Options{HTTPClient: http.DefaultClient})
	_, err := c.Generate(context.Background(), render.Request{Prompt: "  "})
	assert.EqualError(t, err, "prompt is empty")
}
