package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callai-worker/pkg/database"
	"callai-worker/pkg/entity"
	apperrors "callai-worker/pkg/errors"
	"callai-worker/pkg/transcription"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeStore struct {
	task      *database.Task
	metadata  *database.CallMetadata
	dicts     []database.Dictionary
	phrases   []database.Phrase
	settings  []database.Settings
	items     []database.SettingsItem
	dictItems []database.SettingsDictItem

	getTaskErr error

	savedMetrics *database.CallMetrics
	savedMatches []database.TaskToDict
	failedReason string
}

func (s *fakeStore) GetTask(id uuid.UUID) (*database.Task, error) {
	if s.getTaskErr != nil {
		return nil, s.getTaskErr
	}
	return s.task, nil
}

func (s *fakeStore) GetCallMetadata(uuid.UUID) (*database.CallMetadata, error) {
	return s.metadata, nil
}

func (s *fakeStore) ListDictionaries() ([]database.Dictionary, error) { return s.dicts, nil }
func (s *fakeStore) ListAllPhrases() ([]database.Phrase, error)       { return s.phrases, nil }

func (s *fakeStore) ListSettingsByProject(uuid.UUID) ([]database.Settings, error) {
	return s.settings, nil
}

func (s *fakeStore) ListSettingsItemsByProject(uuid.UUID) ([]database.SettingsItem, error) {
	return s.items, nil
}

func (s *fakeStore) ListSettingsDictItemsByProject(uuid.UUID) ([]database.SettingsDictItem, error) {
	return s.dictItems, nil
}

func (s *fakeStore) SaveTaskResult(taskID uuid.UUID, metrics database.CallMetrics, matches []database.TaskToDict) error {
	s.savedMetrics = &metrics
	s.savedMatches = matches
	return nil
}

func (s *fakeStore) MarkTaskFailed(id uuid.UUID, reason string) error {
	s.failedReason = reason
	return nil
}

type fakeTranscriber struct {
	data    *entity.RecognitionData
	err     error
	request *transcription.Request
}

func (f *fakeTranscriber) Transcribe(_ context.Context, request transcription.Request) (*entity.RecognitionData, error) {
	f.request = &request
	return f.data, f.err
}

type fakeIndex struct {
	indexed map[uuid.UUID]*entity.RecognitionData
	hits    map[string]bool
}

func (f *fakeIndex) IndexRecognition(taskID uuid.UUID, data *entity.RecognitionData) error {
	if f.indexed == nil {
		f.indexed = make(map[uuid.UUID]*entity.RecognitionData)
	}
	f.indexed[taskID] = data
	return nil
}

func (f *fakeIndex) SearchPhrase(_ uuid.UUID, phrase string, _ entity.Participant) (bool, error) {
	return f.hits[phrase], nil
}

func (f *fakeIndex) LoadPayload(uuid.UUID) ([]byte, error) { return nil, nil }

func testRecognitionData() *entity.RecognitionData {
	return &entity.RecognitionData{
		Emotions: []entity.Emotion{entity.EmotionNeutral, entity.EmotionPositive, entity.EmotionNeutral},
		PhraseTimestamps: entity.PhraseTimestamps{
			Employee: []entity.Interval{{Start: 1.0, End: 4.0}, {Start: 6.0, End: 9.0}},
			Client:   []entity.Interval{{Start: 4.5, End: 5.5}},
		},
		Utterances: []entity.Utterance{
			{Text: "hello how can i help", Timestamps: entity.Interval{Start: 1.0, End: 4.0}, Speaker: entity.ParticipantEmployee},
			{Text: "i want a refund", Timestamps: entity.Interval{Start: 4.5, End: 5.5}, Speaker: entity.ParticipantClient},
		},
	}
}

func newTestProcessor() (*Processor, *fakeStore, *fakeTranscriber, *fakeIndex) {
	taskID := uuid.New()
	projectID := uuid.New()
	metadataID := uuid.New()

	settings := database.Settings{ID: uuid.New(), ProjectID: projectID, Kind: database.SettingsKindScript}
	item := database.SettingsItem{
		ID:          uuid.New(),
		SettingsID:  settings.ID,
		Kind:        database.SettingsItemDictionary,
		Name:        "greeting",
		ScoreWeight: 1,
	}

	store := &fakeStore{
		task: &database.Task{
			ID:             taskID,
			CallMetadataID: metadataID,
			Status:         database.TaskStatusProcessing,
			ProjectID:      projectID,
		},
		metadata: &database.CallMetadata{
			MetadataID:   metadataID,
			FileURL:      "s3://bucket/call.wav",
			LeftChannel:  entity.ParticipantEmployee,
			RightChannel: entity.ParticipantClient,
		},
		dicts: []database.Dictionary{
			{ID: 1, Name: "greeting", Participant: entity.ParticipantEmployee},
		},
		phrases: []database.Phrase{
			{ID: 1, DictionaryID: 1, Text: "how can i help"},
		},
		settings: []database.Settings{settings},
		items:    []database.SettingsItem{item},
		dictItems: []database.SettingsDictItem{
			{ID: uuid.New(), SettingsItemID: item.ID, DictionaryID: 1, Contains: true},
		},
	}

	transcriber := &fakeTranscriber{data: testRecognitionData()}
	searchIndex := &fakeIndex{hits: map[string]bool{"how can i help": true}}

	return NewProcessor(store, transcriber, searchIndex, newTestLogger()), store, transcriber, searchIndex
}

func TestHandleDeliverySuccess(t *testing.T) {
	processor, store, transcriber, searchIndex := newTestProcessor()

	body, err := json.Marshal(store.task.ID)
	require.NoError(t, err)

	require.NoError(t, processor.HandleDelivery(context.Background(), body))

	// The transcript was indexed under the task id.
	assert.Contains(t, searchIndex.indexed, store.task.ID)

	// The recognition request carries the employee's physical channel.
	require.NotNil(t, transcriber.request)
	assert.Equal(t, "L", transcriber.request.OperatorChannel)
	assert.Equal(t, "s3://bucket/call.wav", transcriber.request.FileURL)

	// Metrics were computed and scored before persisting.
	require.NotNil(t, store.savedMetrics)
	assert.Equal(t, store.task.ID, store.savedMetrics.TaskID)
	assert.Equal(t, 100, store.savedMetrics.ScriptScore)
	assert.InDelta(t, 9.0, store.savedMetrics.CallDuration, 1e-9)

	require.Len(t, store.savedMatches, 1)
	assert.True(t, store.savedMatches[0].Contains)
	assert.Empty(t, store.failedReason)
}

func TestHandleDeliveryMalformedPayload(t *testing.T) {
	processor, store, _, _ := newTestProcessor()

	err := processor.HandleDelivery(context.Background(), []byte("not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)

	// No task id was decoded, so nothing can be marked failed.
	assert.Empty(t, store.failedReason)
	assert.Nil(t, store.savedMetrics)
}

func TestHandleDeliveryTaskNotFound(t *testing.T) {
	processor, store, _, _ := newTestProcessor()
	store.getTaskErr = apperrors.NewNotFound("task missing")

	body, err := json.Marshal(store.task.ID)
	require.NoError(t, err)

	err = processor.HandleDelivery(context.Background(), body)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotEmpty(t, store.failedReason)
}

func TestHandleDeliveryTranscriptionFailure(t *testing.T) {
	processor, store, transcriber, _ := newTestProcessor()
	transcriber.data = nil
	transcriber.err = apperrors.NewTranscriptionFailed("service unavailable")

	body, err := json.Marshal(store.task.ID)
	require.NoError(t, err)

	err = processor.HandleDelivery(context.Background(), body)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTranscriptionFailed)

	assert.NotEmpty(t, store.failedReason)
	assert.Nil(t, store.savedMetrics)
}

func TestHandleDeliveryScoringFailure(t *testing.T) {
	processor, store, _, _ := newTestProcessor()
	// A category without items fails scoring before anything is saved.
	store.items = nil

	body, err := json.Marshal(store.task.ID)
	require.NoError(t, err)

	err = processor.HandleDelivery(context.Background(), body)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoScoringItems)
	assert.Nil(t, store.savedMetrics)
	assert.NotEmpty(t, store.failedReason)
}
