package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callai-worker/pkg/database"
	"callai-worker/pkg/entity"
	apperrors "callai-worker/pkg/errors"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewRequestChannelMapping(t *testing.T) {
	metadata := &database.CallMetadata{
		FileURL:      "s3://bucket/call.mp3",
		LeftChannel:  entity.ParticipantEmployee,
		RightChannel: entity.ParticipantClient,
	}

	request := NewRequest(metadata)
	assert.Equal(t, "L", request.OperatorChannel)
	assert.Equal(t, "s3://bucket/call.mp3", request.FileURL)
	assert.Equal(t, []string{"speech_recognition", "emotion_recognition"}, request.Tasks)

	metadata.LeftChannel = entity.ParticipantClient
	metadata.RightChannel = entity.ParticipantEmployee
	assert.Equal(t, "R", NewRequest(metadata).OperatorChannel)
}

func TestTranscribeDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extract_info_s3/", r.URL.Path)

		var request Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "L", request.OperatorChannel)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"call_holds": {"music": [], "silent": []},
			"emotion_recognition_result": ["neutral"],
			"phrase_timestamps": {"client": [], "employee": [[0.0, 2.5]]},
			"speech_recognition_result": [
				{"text": "good afternoon", "timestamps": [0.0, 2.5], "speaker": "employee"}
			]
		}`)
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL}, newTestLogger())
	require.NoError(t, err)

	data, err := client.Transcribe(context.Background(), Request{
		FileURL:         "s3://bucket/call.mp3",
		OperatorChannel: "L",
		Tasks:           []string{"speech_recognition"},
	})
	require.NoError(t, err)

	require.Len(t, data.Utterances, 1)
	assert.Equal(t, "good afternoon", data.Utterances[0].Text)
	assert.Equal(t, entity.Interval{Start: 0, End: 2.5}, data.PhraseTimestamps.Employee[0])
}

func TestTranscribeNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recognizer overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL}, newTestLogger())
	require.NoError(t, err)

	_, err = client.Transcribe(context.Background(), Request{})
	assert.True(t, errors.Is(err, apperrors.ErrTranscriptionFailed))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetErrorFields(err)["status"])
}

func TestTranscribeMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"speech_recognition_result": "not an array"}`)
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL}, newTestLogger())
	require.NoError(t, err)

	_, err = client.Transcribe(context.Background(), Request{})
	assert.True(t, errors.Is(err, apperrors.ErrTranscriptionFailed))
}

func TestTranscribeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL}, newTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Transcribe(ctx, Request{})
	assert.Error(t, err)
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(Config{}, newTestLogger())
	assert.Error(t, err)
}
