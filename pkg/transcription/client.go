package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"callai-worker/pkg/database"
	"callai-worker/pkg/entity"
	apperrors "callai-worker/pkg/errors"
)

// Service obtains recognition data for a recorded call. The pipeline only
// depends on this interface; tests substitute a fake.
type Service interface {
	Transcribe(ctx context.Context, request Request) (*entity.RecognitionData, error)
}

// Request is the payload sent to the recognition service.
type Request struct {
	FileURL         string   `json:"file_url"`
	OperatorChannel string   `json:"operator_channel"`
	Tasks           []string `json:"tasks"`
}

// NewRequest builds a recognition request from call metadata. The operator
// channel tells the service which physical channel carries the employee.
func NewRequest(metadata *database.CallMetadata) Request {
	operatorChannel := "R"
	if metadata.LeftChannel == entity.ParticipantEmployee {
		operatorChannel = "L"
	}

	return Request{
		FileURL:         metadata.FileURL,
		OperatorChannel: operatorChannel,
		Tasks:           []string{"speech_recognition", "emotion_recognition"},
	}
}

// Config defines connection settings for the recognition service.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient is the production Service implementation.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

// NewHTTPClient creates a recognition service client.
func NewHTTPClient(cfg Config, logger *logrus.Logger) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("transcription: base URL is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("transcription: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &HTTPClient{
		baseURL: trimmed,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Transcribe posts the request and decodes the recognition response.
// Non-2xx statuses and malformed bodies fail the attempt.
func (c *HTTPClient) Transcribe(ctx context.Context, request Request) (*entity.RecognitionData, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("transcription: failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/extract_info_s3/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("transcription: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"file_url":         request.FileURL,
		"operator_channel": request.OperatorChannel,
	}).Debug("Requesting call recognition")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTranscriptionFailed,
			fmt.Sprintf("recognition request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewTranscriptionFailed(
			fmt.Sprintf("recognition service returned status %s", resp.Status),
			map[string]interface{}{"status": resp.StatusCode},
		)
	}

	var data entity.RecognitionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperrors.NewTranscriptionFailed(
			fmt.Sprintf("failed to decode recognition response: %v", err))
	}

	return &data, nil
}
