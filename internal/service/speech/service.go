// Package speech is the boundary to the external transcription
// service. The engine never sees audio; voice handlers transcribe here
// and feed text into the turn pipeline.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ewanfisher/voxmail/backend/internal/config"
)

// Transcriber converts one voice clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Service calls a Whisper-compatible transcription endpoint
// (POST {base}/audio/transcriptions, multipart upload).
type Service struct {
	cfg    config.SpeechConfig
	client *http.Client
}

// NewService builds the transcription client.
func NewService(cfg config.SpeechConfig) *Service {
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transcribe uploads the audio and returns the transcript text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if format == "" {
		format = "ogg"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "voice."+format)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	_ = writer.WriteField("model", s.cfg.Model)
	_ = writer.WriteField("language", s.cfg.Language)
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		// Some providers return bare text for response_format=text.
		return strings.TrimSpace(string(payload)), nil
	}
	return strings.TrimSpace(parsed.Text), nil
}
