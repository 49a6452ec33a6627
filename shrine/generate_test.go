package shrine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func newTestGenerator(serverUrl string) *Generator {
	settings := DefaultGeneratorSettings()
	settings.ApiUrl = serverUrl
	return NewGenerator("test-key", settings)
}

func TestGenerateOmikuji(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/chat/completions")
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer test-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"fortune\":\"大吉\",\"general\":\"良い一日\",\"lucky_item\":\"鈴\"}"}}]}`))
	}))
	defer server.Close()

	result, err := newTestGenerator(server.URL).GenerateOmikuji(context.Background(), "draw one")
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Fortune, "大吉")
	assert.Equal(t, result.LuckyItem, "鈴")
}

func TestGenerateOmikujiBadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"not json"}}]}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL).GenerateOmikuji(context.Background(), "draw one")
	assert.NotEqual(t, err, nil)
}

func TestGenerateOmikujiApiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL).GenerateOmikuji(context.Background(), "draw one")
	assert.NotEqual(t, err, nil)
}

func TestGenerateVideo(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/videos/generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"video_url":"` + server.URL + `/media/clip.mp4"}`))
	})
	mux.HandleFunc("/media/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video bytes"))
	})

	data, err := newTestGenerator(server.URL).GenerateVideo(context.Background(), "a shrine in the rain")
	assert.Equal(t, err, nil)
	assert.Equal(t, string(data), "video bytes")
}
