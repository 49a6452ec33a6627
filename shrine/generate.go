package shrine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generation clients for the admin tooling: fortunes come from a chat
// completion endpoint, videos from a video generation endpoint. Both are
// opaque request/response services; failures surface as errors.

type GeneratorSettings struct {
	ApiUrl       string
	ChatModel    string
	VideoModel   string
	VideoSeconds int
}

func DefaultGeneratorSettings() *GeneratorSettings {
	return &GeneratorSettings{
		ApiUrl:       "https://api.openai.com/v1",
		ChatModel:    "gpt-4o-mini",
		VideoModel:   "sora-turbo",
		VideoSeconds: 5,
	}
}

type Generator struct {
	apiKey     string
	settings   *GeneratorSettings
	httpClient *http.Client
}

func NewGeneratorWithDefaults(apiKey string) *Generator {
	return NewGenerator(apiKey, DefaultGeneratorSettings())
}

func NewGenerator(apiKey string, settings *GeneratorSettings) *Generator {
	return &Generator{
		apiKey:   apiKey,
		settings: settings,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

// GenerateOmikuji asks the chat model for one fortune as JSON matching
// the OmikujiResult schema.
func (self *Generator) GenerateOmikuji(ctx context.Context, prompt string) (*OmikujiResult, error) {
	requestBody := map[string]any{
		"model": self.settings.ChatModel,
		"messages": []map[string]string{
			{
				"role": "system",
				"content": "You generate omikuji (Japanese shrine fortunes) as JSON with keys: " +
					"fortune, general, love, money, health, work, lucky_item, lucky_color. " +
					"Respond with JSON only.",
			},
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"response_format": map[string]string{
			"type": "json_object",
		},
	}

	var responseBody struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := self.post(ctx, "/chat/completions", requestBody, &responseBody); err != nil {
		return nil, err
	}
	if len(responseBody.Choices) == 0 {
		return nil, fmt.Errorf("no completion returned")
	}

	content := strings.TrimSpace(responseBody.Choices[0].Message.Content)
	result := &OmikujiResult{}
	if err := json.Unmarshal([]byte(content), result); err != nil {
		return nil, fmt.Errorf("parse generated omikuji: %w", err)
	}
	if result.Fortune == "" {
		return nil, fmt.Errorf("generated omikuji has no fortune")
	}
	return result, nil
}

// GenerateVideo requests a generated clip and downloads it.
func (self *Generator) GenerateVideo(ctx context.Context, prompt string) ([]byte, error) {
	requestBody := map[string]any{
		"model":    self.settings.VideoModel,
		"prompt":   prompt,
		"duration": self.settings.VideoSeconds,
	}

	var responseBody struct {
		VideoUrl string `json:"video_url"`
		Url      string `json:"url"`
	}
	if err := self.post(ctx, "/videos/generations", requestBody, &responseBody); err != nil {
		return nil, err
	}

	videoUrl := responseBody.VideoUrl
	if videoUrl == "" {
		videoUrl = responseBody.Url
	}
	if videoUrl == "" {
		return nil, fmt.Errorf("no video url returned")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, videoUrl, nil)
	if err != nil {
		return nil, err
	}
	response, err := self.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download video: %d", response.StatusCode)
	}
	return io.ReadAll(response.Body)
}

func (self *Generator) post(ctx context.Context, path string, requestBody any, responseBody any) error {
	data, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, self.settings.ApiUrl+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+self.apiKey)

	response, err := self.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return fmt.Errorf("generate: %d %s", response.StatusCode, string(message))
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}
