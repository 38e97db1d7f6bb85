package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callai-worker/pkg/analysis"
	"callai-worker/pkg/database"
	"callai-worker/pkg/entity"
	apperrors "callai-worker/pkg/errors"
	"callai-worker/pkg/index"
	"callai-worker/pkg/metrics"
	"callai-worker/pkg/scoring"
	"callai-worker/pkg/transcription"
)

// Store is the slice of the repository the processor depends on.
type Store interface {
	GetTask(id uuid.UUID) (*database.Task, error)
	GetCallMetadata(metadataID uuid.UUID) (*database.CallMetadata, error)
	ListDictionaries() ([]database.Dictionary, error)
	ListAllPhrases() ([]database.Phrase, error)
	ListSettingsByProject(projectID uuid.UUID) ([]database.Settings, error)
	ListSettingsItemsByProject(projectID uuid.UUID) ([]database.SettingsItem, error)
	ListSettingsDictItemsByProject(projectID uuid.UUID) ([]database.SettingsDictItem, error)
	SaveTaskResult(taskID uuid.UUID, metrics database.CallMetrics, matches []database.TaskToDict) error
	MarkTaskFailed(id uuid.UUID, reason string) error
}

// Processor runs one task through the full pipeline: recognition,
// indexing, audio metrics, dictionary matching, scoring, persistence.
type Processor struct {
	store       Store
	transcriber transcription.Service
	searchIndex index.SearchIndex
	logger      *logrus.Logger
}

// NewProcessor creates a task processor.
func NewProcessor(
	store Store,
	transcriber transcription.Service,
	searchIndex index.SearchIndex,
	logger *logrus.Logger,
) *Processor {
	return &Processor{
		store:       store,
		transcriber: transcriber,
		searchIndex: searchIndex,
		logger:      logger,
	}
}

// HandleDelivery decodes a queue message and processes the task it
// names. A failure after the id is known marks the task failed before
// the message is rejected.
func (p *Processor) HandleDelivery(ctx context.Context, body []byte) error {
	var taskID uuid.UUID
	if err := json.Unmarshal(body, &taskID); err != nil {
		return apperrors.Wrap(apperrors.ErrMalformedPayload,
			fmt.Sprintf("failed to decode task id from queue message: %v", err))
	}

	started := time.Now()
	if metrics.TasksInFlight != nil {
		metrics.TasksInFlight.Inc()
		defer metrics.TasksInFlight.Dec()
	}

	err := p.Process(ctx, taskID)
	status := "ready"
	if err != nil {
		status = "failed"
		if markErr := p.store.MarkTaskFailed(taskID, err.Error()); markErr != nil {
			p.logger.WithError(markErr).WithField("task_id", taskID).
				Error("Failed to persist task failure")
		}
	}

	if metrics.TasksProcessedTotal != nil {
		metrics.TasksProcessedTotal.WithLabelValues(status).Inc()
		metrics.TaskProcessingDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}

	return err
}

// Process runs the pipeline stages for one task.
func (p *Processor) Process(ctx context.Context, taskID uuid.UUID) error {
	logger := p.logger.WithField("task_id", taskID)
	logger.Info("Processing task")

	task, err := p.store.GetTask(taskID)
	if err != nil {
		return err
	}

	metadata, err := p.store.GetCallMetadata(task.CallMetadataID)
	if err != nil {
		return err
	}

	data, err := p.transcribe(ctx, metadata)
	if err != nil {
		return err
	}

	if err := p.indexTranscript(taskID, data); err != nil {
		return err
	}

	callMetrics := p.computeMetrics(taskID, data)

	matches, err := p.matchDictionaries(taskID, logger)
	if err != nil {
		return err
	}

	if err := p.score(task.ProjectID, matches, &callMetrics); err != nil {
		return err
	}

	stage := startStage("persist")
	if err := p.store.SaveTaskResult(taskID, callMetrics, matches); err != nil {
		return err
	}
	stage.done()

	logger.WithFields(logrus.Fields{
		"script_score":  callMetrics.ScriptScore,
		"quality_score": callMetrics.EmployeeQualityScore,
	}).Info("Task processed")
	return nil
}

func (p *Processor) transcribe(ctx context.Context, metadata *database.CallMetadata) (*entity.RecognitionData, error) {
	stage := startStage("transcription")
	defer stage.done()

	data, err := p.transcriber.Transcribe(ctx, transcription.NewRequest(metadata))
	if metrics.TranscriptionRequests != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.TranscriptionRequests.WithLabelValues(status).Inc()
		metrics.TranscriptionLatency.Observe(stage.elapsed().Seconds())
	}
	return data, err
}

func (p *Processor) indexTranscript(taskID uuid.UUID, data *entity.RecognitionData) error {
	stage := startStage("index")
	defer stage.done()

	err := p.searchIndex.IndexRecognition(taskID, data)
	if metrics.IndexOperations != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.IndexOperations.WithLabelValues("index", status).Inc()
	}
	return err
}

func (p *Processor) computeMetrics(taskID uuid.UUID, data *entity.RecognitionData) database.CallMetrics {
	stage := startStage("audio_metrics")
	defer stage.done()

	callMetrics := analysis.ComputeCallMetrics(data)
	callMetrics.TaskID = taskID
	return callMetrics
}

func (p *Processor) matchDictionaries(taskID uuid.UUID, logger *logrus.Entry) ([]database.TaskToDict, error) {
	stage := startStage("dictionary_match")
	defer stage.done()

	dictionaries, err := p.store.ListDictionaries()
	if err != nil {
		return nil, err
	}
	phrases, err := p.store.ListAllPhrases()
	if err != nil {
		return nil, err
	}

	matches, err := scoring.MatchDictionaries(p.searchIndex, taskID, dictionaries, phrases, p.logger)
	if err != nil {
		return nil, err
	}

	logger.WithField("dictionaries", len(matches)).Debug("Matched dictionaries against transcript")
	return matches, nil
}

func (p *Processor) score(
	projectID uuid.UUID,
	matches []database.TaskToDict,
	callMetrics *database.CallMetrics,
) error {
	stage := startStage("scoring")
	defer stage.done()

	settings, err := p.store.ListSettingsByProject(projectID)
	if err != nil {
		return err
	}
	items, err := p.store.ListSettingsItemsByProject(projectID)
	if err != nil {
		return err
	}
	dictItems, err := p.store.ListSettingsDictItemsByProject(projectID)
	if err != nil {
		return err
	}

	_, err = scoring.ScoreSettings(matches, callMetrics, settings, items, dictItems)
	return err
}

// stageTimer reports per-stage durations to prometheus when metrics are
// initialized and is a no-op otherwise.
type stageTimer struct {
	stage   string
	started time.Time
}

func startStage(stage string) stageTimer {
	return stageTimer{stage: stage, started: time.Now()}
}

func (s stageTimer) elapsed() time.Duration {
	return time.Since(s.started)
}

func (s stageTimer) done() {
	if metrics.StageDuration != nil {
		metrics.StageDuration.WithLabelValues(s.stage).Observe(s.elapsed().Seconds())
	}
}
