package imagegen_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
	"reelsmith/internal/services/imagegen"
)

func newClient(t *testing.T, handler http.HandlerFunc) imagegen.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := imagegen.NewHTTP(config.Images{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		DefaultModel: "image-large",
	})
	require.NoError(t, err)
	return client
}

func TestGenerateReturnsURLs(t *testing.T) {
	var captured map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"data":[{"url":"https://img.example/a.png"},{"url":"https://img.example/b.png"}]}`)
	})

	images, err := client.Generate(context.Background(), imagegen.Request{
		Prompt: "roman forum at sunrise, cinematic",
		Width:  1920,
		Height: 1080,
		Count:  2,
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Equal(t, "https://img.example/a.png", images[0].URL)

	require.Equal(t, "image-large", captured["model"], "default model should apply")
	require.Equal(t, "1920x1080", captured["size"])
	require.Equal(t, float64(2), captured["n"])
}

func TestGenerateDecodesInlinePayload(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"b64_json":"%s"}]}`, encoded)
	})

	images, err := client.Generate(context.Background(), imagegen.Request{Prompt: "aqueduct"})
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, []byte("png-bytes"), images[0].Data)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.Generate(context.Background(), imagegen.Request{})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestGenerateRateLimitIsRetryable(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	_, err := client.Generate(context.Background(), imagegen.Request{Prompt: "aqueduct"})
	require.ErrorIs(t, err, services.ErrUpstream)
	require.True(t, services.Retryable(err))
}

func TestGenerateNoImages(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	_, err := client.Generate(context.Background(), imagegen.Request{Prompt: "aqueduct"})
	require.ErrorIs(t, err, services.ErrUpstream)
}
