package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arch-render-studio/internal/render"
)

func TestSDKGenerateSendsImagesAndDecodesResult(t *testing.T) {
	var got generateContentRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, imageResponse(t, []byte("png-bytes")))
	}))
	defer srv.Close()

	c, err := NewSDK(context.Background(), SDKOptions{APIKey: "secret", BaseURL: srv.URL, Model: "test-model", HTTPClient: srv.Client()})
	require.NoError(t, err)

	res, err := c.Generate(context.Background(), render.Request{
		Operation: render.OpRender,
		Prompt:    "modern villa",
		Images:    []render.Image{{Data: []byte("src"), MimeType: "image/jpeg"}, {Data: []byte("ref"), MimeType: "image/png"}},
	})
	require.NoError(t, err)

	assert.Contains(t, path, "models/test-model:generateContent")
	assert.Equal(t, []byte("png-bytes"), res.Image.Data)
	assert.Equal(t, "image/png", res.Image.MimeType)
	assert.Equal(t, "done", res.Text)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 5)
	assert.Equal(t, "modern villa", parts[0].Text)
	assert.Equal(t, "Image #1 (target):", parts[1].Text)
	require.NotNil(t, parts[2].InlineData)
	assert.Equal(t, "image/jpeg", parts[2].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("src")), parts[2].InlineData.Data)
	assert.Equal(t, "Image #2 (reference):", parts[3].Text)
	require.NotNil(t, parts[4].InlineData)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ref")), parts[4].InlineData.Data)
}

func TestSDKGenerateTextOnlyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"I cannot"}]}}]}`)
	}))
	defer srv.Close()

	c, err := NewSDK(context.Background(), SDKOptions{APIKey: "secret", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), render.Request{Operation: render.OpRender, Prompt: "villa"})
	assert.ErrorIs(t, err, render.ErrNoImage)
}

func TestNewSDKRequiresKey(t *testing.T) {
	_, err := NewSDK(context.Background(), SDKOptions{})
	assert.Error(t, err)
}
