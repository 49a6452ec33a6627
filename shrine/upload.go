package shrine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Uploader posts files to a NIP-96 media host and returns the hosted url.
type Uploader struct {
	serverUrl  string
	apiKey     string
	httpClient *http.Client
}

func NewUploader(serverUrl string, apiKey string) *Uploader {
	return &Uploader{
		serverUrl:  serverUrl,
		apiKey:     apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type nip96Response struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Url        string `json:"url"`
	Nip94Event *struct {
		Tags [][]string `json:"tags"`
	} `json:"nip94_event"`
}

// Upload sends the file as multipart form data. Failures surface as
// errors, never silent data loss.
func (self *Uploader) Upload(ctx context.Context, filename string, file io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, self.serverUrl+"/upload", body)
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if self.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+self.apiKey)
	}

	response, err := self.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		message, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return "", fmt.Errorf("upload failed: %d %s", response.StatusCode, string(message))
	}

	parsed := &nip96Response{}
	if err := json.NewDecoder(response.Body).Decode(parsed); err != nil {
		return "", fmt.Errorf("upload response: %w", err)
	}
	if parsed.Status == "error" {
		return "", fmt.Errorf("upload failed: %s", parsed.Message)
	}
	if parsed.Url != "" {
		return parsed.Url, nil
	}
	if parsed.Nip94Event != nil {
		for _, tag := range parsed.Nip94Event.Tags {
			if 2 <= len(tag) && tag[0] == "url" {
				return tag[1], nil
			}
		}
	}
	return "", fmt.Errorf("no url returned from upload")
}
