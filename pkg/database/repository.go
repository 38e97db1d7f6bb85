package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callai-worker/pkg/entity"
	apperrors "callai-worker/pkg/errors"
)

// Repository provides database operations for the pipeline and the
// read-only accessors the external CRUD surface consumes.
type Repository struct {
	db     *MySQLDatabase
	logger *logrus.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *MySQLDatabase, logger *logrus.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Task operations

// GetTask retrieves a task by id.
func (r *Repository) GetTask(id uuid.UUID) (*Task, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT id, call_metadata_id, status, failed_reason, project_id
		FROM task WHERE id = ?
	`

	task := &Task{}
	err := r.db.db.QueryRowContext(ctx, query, id.String()).Scan(
		&task.ID, &task.CallMetadataID, &task.Status,
		&task.FailedReason, &task.ProjectID,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrap(apperrors.ErrTaskNotFound, fmt.Sprintf("task %s", id))
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	return task, nil
}

// MarkTaskFailed sets the task to failed with a human-readable reason.
// Runs outside any transaction: it is the best-effort failure path.
func (r *Repository) MarkTaskFailed(id uuid.UUID, reason string) error {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `UPDATE task SET status = ?, failed_reason = ? WHERE id = ?`

	_, err := r.db.db.ExecContext(ctx, query, TaskStatusFailed, reason, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", id, err)
	}

	r.logger.WithFields(logrus.Fields{
		"task_id": id,
		"reason":  reason,
	}).Warn("Task marked as failed")

	return nil
}

// ReprocessTask resets a finished task back to processing so it can be
// re-enqueued. A task that is still processing is rejected.
func (r *Repository) ReprocessTask(id uuid.UUID) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		var status TaskStatus
		err := tx.QueryRow(`SELECT status FROM task WHERE id = ? FOR UPDATE`, id.String()).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperrors.Wrap(apperrors.ErrTaskNotFound, fmt.Sprintf("task %s", id))
			}
			return fmt.Errorf("failed to lock task %s: %w", id, err)
		}

		if status == TaskStatusProcessing {
			return apperrors.Wrap(apperrors.ErrTaskAlreadyProcessing, fmt.Sprintf("task %s", id))
		}

		_, err = tx.Exec(`UPDATE task SET status = ?, failed_reason = NULL WHERE id = ?`,
			TaskStatusProcessing, id.String())
		if err != nil {
			return fmt.Errorf("failed to reset task %s: %w", id, err)
		}

		return nil
	})
}

// Call metadata operations

// GetCallMetadata retrieves the recording facts referenced by a task.
func (r *Repository) GetCallMetadata(metadataID uuid.UUID) (*CallMetadata, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT metadata_id, call_id, performed_at, uploaded_at, file_hash,
			   file_url, file_name, duration, left_channel, right_channel,
			   client_name, employee_name, inbound
		FROM call_metadata WHERE metadata_id = ?
	`

	metadata := &CallMetadata{}
	err := r.db.db.QueryRowContext(ctx, query, metadataID.String()).Scan(
		&metadata.MetadataID, &metadata.CallID, &metadata.PerformedAt,
		&metadata.UploadedAt, &metadata.FileHash, &metadata.FileURL,
		&metadata.FileName, &metadata.Duration, &metadata.LeftChannel,
		&metadata.RightChannel, &metadata.ClientName, &metadata.EmployeeName,
		&metadata.Inbound,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound(fmt.Sprintf("call metadata %s", metadataID))
		}
		return nil, fmt.Errorf("failed to get call metadata %s: %w", metadataID, err)
	}

	return metadata, nil
}

// Dictionary operations

// ListDictionaries returns all dictionaries.
func (r *Repository) ListDictionaries() ([]Dictionary, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	rows, err := r.db.db.QueryContext(ctx, `SELECT id, name, participant FROM dictionary`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dictionaries: %w", err)
	}
	defer rows.Close()

	var dictionaries []Dictionary
	for rows.Next() {
		var dict Dictionary
		if err := rows.Scan(&dict.ID, &dict.Name, &dict.Participant); err != nil {
			return nil, fmt.Errorf("failed to scan dictionary: %w", err)
		}
		dictionaries = append(dictionaries, dict)
	}

	return dictionaries, rows.Err()
}

// ListAllPhrases returns every phrase of every dictionary.
func (r *Repository) ListAllPhrases() ([]Phrase, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	rows, err := r.db.db.QueryContext(ctx, `SELECT id, dictionary_id, text FROM phrase`)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrases: %w", err)
	}
	defer rows.Close()

	var phrases []Phrase
	for rows.Next() {
		var phrase Phrase
		if err := rows.Scan(&phrase.ID, &phrase.DictionaryID, &phrase.Text); err != nil {
			return nil, fmt.Errorf("failed to scan phrase: %w", err)
		}
		phrases = append(phrases, phrase)
	}

	return phrases, rows.Err()
}

// Settings operations

// ListSettingsByProject returns the scoring categories of a project.
func (r *Repository) ListSettingsByProject(projectID uuid.UUID) ([]Settings, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `SELECT id, project_id, type FROM settings WHERE project_id = ?`

	rows, err := r.db.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []Settings
	for rows.Next() {
		var s Settings
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan settings: %w", err)
		}
		settings = append(settings, s)
	}

	return settings, rows.Err()
}

// ListSettingsItemsByProject returns all weighted rules of a project's
// categories.
func (r *Repository) ListSettingsItemsByProject(projectID uuid.UUID) ([]SettingsItem, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT si.id, si.settings_id, si.settings_immutable, si.type, si.name, si.score_weight
		FROM settings_item si
		JOIN settings ON si.settings_id = settings.id
		WHERE settings.project_id = ?
	`

	rows, err := r.db.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list settings items: %w", err)
	}
	defer rows.Close()

	var items []SettingsItem
	for rows.Next() {
		var item SettingsItem
		if err := rows.Scan(&item.ID, &item.SettingsID, &item.Immutable,
			&item.Kind, &item.Name, &item.ScoreWeight); err != nil {
			return nil, fmt.Errorf("failed to scan settings item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ListSettingsDictItemsByProject returns all dictionary bindings of a
// project's rules.
func (r *Repository) ListSettingsDictItemsByProject(projectID uuid.UUID) ([]SettingsDictItem, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT sdi.id, sdi.settings_item_id, sdi.dictionary_id, sdi.contains
		FROM settings_dict_item sdi
		JOIN settings_item ON settings_item.id = sdi.settings_item_id
		JOIN settings ON settings.id = settings_item.settings_id
		WHERE settings.project_id = ?
	`

	rows, err := r.db.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list settings dict items: %w", err)
	}
	defer rows.Close()

	var items []SettingsDictItem
	for rows.Next() {
		var item SettingsDictItem
		if err := rows.Scan(&item.ID, &item.SettingsItemID, &item.DictionaryID, &item.Contains); err != nil {
			return nil, fmt.Errorf("failed to scan settings dict item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Metrics operations

// GetCallMetricsByTask retrieves the metrics row of one task.
func (r *Repository) GetCallMetricsByTask(taskID uuid.UUID) (*CallMetrics, error) {
	ctx, cancel := r.db.getContext()
	defer cancel()

	query := `
		SELECT task_id, call_duration, time_to_answer, total_employee_speech,
			   total_client_speech, employee_client_speech_ratio,
			   employee_speech_ratio, client_speech_ratio, call_holds_count,
			   silence_pause_count, total_employee_silence,
			   client_interruptions_count, total_client_interruptions_duration,
			   avg_employee_words_per_min, avg_client_words_per_min,
			   script_score, employee_quality_score,
			   emotion_mode, emotion_start_mode, emotion_end_mode
		FROM task_call_metrics WHERE task_id = ?
	`

	metrics := &CallMetrics{}
	var emotionMode, emotionStart, emotionEnd sql.NullString
	err := r.db.db.QueryRowContext(ctx, query, taskID.String()).Scan(
		&metrics.TaskID, &metrics.CallDuration, &metrics.TimeToAnswer,
		&metrics.TotalEmployeeSpeech, &metrics.TotalClientSpeech,
		&metrics.EmployeeClientSpeechRatio, &metrics.EmployeeSpeechRatio,
		&metrics.ClientSpeechRatio, &metrics.CallHoldsCount,
		&metrics.SilencePauseCount, &metrics.TotalEmployeeSilence,
		&metrics.ClientInterruptionsCount, &metrics.TotalClientInterruptionsDuration,
		&metrics.AvgEmployeeWordsPerMin, &metrics.AvgClientWordsPerMin,
		&metrics.ScriptScore, &metrics.EmployeeQualityScore,
		&emotionMode, &emotionStart, &emotionEnd,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound(fmt.Sprintf("call metrics for task %s", taskID))
		}
		return nil, fmt.Errorf("failed to get call metrics for task %s: %w", taskID, err)
	}

	metrics.EmotionMode = emotionFromNullString(emotionMode)
	metrics.EmotionStartMode = emotionFromNullString(emotionStart)
	metrics.EmotionEndMode = emotionFromNullString(emotionEnd)

	return metrics, nil
}

// SaveTaskResult commits the full outcome of a successful pipeline run in
// one transaction: the metrics row, the per-dictionary match rows and the
// task status flip to ready. Reprocessing replaces earlier rows in place.
func (r *Repository) SaveTaskResult(taskID uuid.UUID, metrics CallMetrics, matches []TaskToDict) error {
	err := r.db.WithTransaction(func(tx *sql.Tx) error {
		if err := insertCallMetrics(tx, metrics); err != nil {
			return err
		}

		if err := replaceTaskDictMatches(tx, taskID, matches); err != nil {
			return err
		}

		_, err := tx.Exec(`UPDATE task SET status = ?, failed_reason = NULL WHERE id = ?`,
			TaskStatusReady, taskID.String())
		if err != nil {
			return fmt.Errorf("failed to update task %s status: %w", taskID, err)
		}

		return nil
	})

	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"task_id":      taskID,
		"dict_matches": len(matches),
	}).Info("Task result committed")

	return nil
}

func insertCallMetrics(tx *sql.Tx, metrics CallMetrics) error {
	query := `
		INSERT INTO task_call_metrics (
			task_id, call_duration, time_to_answer, total_employee_speech,
			total_client_speech, employee_client_speech_ratio,
			employee_speech_ratio, client_speech_ratio, call_holds_count,
			silence_pause_count, total_employee_silence,
			client_interruptions_count, total_client_interruptions_duration,
			avg_employee_words_per_min, avg_client_words_per_min,
			script_score, employee_quality_score,
			emotion_mode, emotion_start_mode, emotion_end_mode
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			call_duration = VALUES(call_duration),
			time_to_answer = VALUES(time_to_answer),
			total_employee_speech = VALUES(total_employee_speech),
			total_client_speech = VALUES(total_client_speech),
			employee_client_speech_ratio = VALUES(employee_client_speech_ratio),
			employee_speech_ratio = VALUES(employee_speech_ratio),
			client_speech_ratio = VALUES(client_speech_ratio),
			call_holds_count = VALUES(call_holds_count),
			silence_pause_count = VALUES(silence_pause_count),
			total_employee_silence = VALUES(total_employee_silence),
			client_interruptions_count = VALUES(client_interruptions_count),
			total_client_interruptions_duration = VALUES(total_client_interruptions_duration),
			avg_employee_words_per_min = VALUES(avg_employee_words_per_min),
			avg_client_words_per_min = VALUES(avg_client_words_per_min),
			script_score = IF(script_score = 0, VALUES(script_score), script_score),
			employee_quality_score = IF(employee_quality_score = 0, VALUES(employee_quality_score), employee_quality_score),
			emotion_mode = VALUES(emotion_mode),
			emotion_start_mode = VALUES(emotion_start_mode),
			emotion_end_mode = VALUES(emotion_end_mode)
	`

	_, err := tx.Exec(query,
		metrics.TaskID.String(), metrics.CallDuration, metrics.TimeToAnswer,
		metrics.TotalEmployeeSpeech, metrics.TotalClientSpeech,
		metrics.EmployeeClientSpeechRatio, metrics.EmployeeSpeechRatio,
		metrics.ClientSpeechRatio, metrics.CallHoldsCount,
		metrics.SilencePauseCount, metrics.TotalEmployeeSilence,
		metrics.ClientInterruptionsCount, metrics.TotalClientInterruptionsDuration,
		metrics.AvgEmployeeWordsPerMin, metrics.AvgClientWordsPerMin,
		metrics.ScriptScore, metrics.EmployeeQualityScore,
		emotionToNullString(metrics.EmotionMode),
		emotionToNullString(metrics.EmotionStartMode),
		emotionToNullString(metrics.EmotionEndMode),
	)
	if err != nil {
		return fmt.Errorf("failed to insert call metrics for task %s: %w", metrics.TaskID, err)
	}

	return nil
}

func replaceTaskDictMatches(tx *sql.Tx, taskID uuid.UUID, matches []TaskToDict) error {
	_, err := tx.Exec(`DELETE FROM task_to_dict WHERE task_id = ?`, taskID.String())
	if err != nil {
		return fmt.Errorf("failed to clear dictionary matches for task %s: %w", taskID, err)
	}

	for _, match := range matches {
		_, err := tx.Exec(
			`INSERT INTO task_to_dict (task_id, dictionary_id, contains) VALUES (?, ?, ?)`,
			match.TaskID.String(), match.DictionaryID, match.Contains,
		)
		if err != nil {
			return fmt.Errorf("failed to insert dictionary match for task %s: %w", taskID, err)
		}
	}

	return nil
}

func emotionToNullString(emotion *entity.Emotion) sql.NullString {
	if emotion == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*emotion), Valid: true}
}

func emotionFromNullString(value sql.NullString) *entity.Emotion {
	if !value.Valid {
		return nil
	}
	emotion := entity.Emotion(value.String)
	return &emotion
}
