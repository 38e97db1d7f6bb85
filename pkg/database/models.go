package database

import (
	"time"

	"github.com/google/uuid"

	"callai-worker/pkg/entity"
)

// TaskStatus tracks a task through the processing pipeline.
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusReady      TaskStatus = "ready"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one call recording's processing unit. Created with status
// processing; only the pipeline moves it to ready/failed, and only the
// external reprocess action moves it back.
type Task struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	CallMetadataID uuid.UUID  `db:"call_metadata_id" json:"call_metadata_id"`
	Status         TaskStatus `db:"status" json:"status"`
	FailedReason   *string    `db:"failed_reason" json:"failed_reason,omitempty"`
	ProjectID      uuid.UUID  `db:"project_id" json:"project_id"`
}

// CallMetadata holds the immutable facts about one recording.
type CallMetadata struct {
	MetadataID   uuid.UUID          `db:"metadata_id" json:"metadata_id"`
	CallID       int64              `db:"call_id" json:"call_id"`
	PerformedAt  time.Time          `db:"performed_at" json:"performed_at"`
	UploadedAt   time.Time          `db:"uploaded_at" json:"uploaded_at"`
	FileHash     string             `db:"file_hash" json:"file_hash"`
	FileURL      string             `db:"file_url" json:"file_url"`
	FileName     string             `db:"file_name" json:"file_name"`
	Duration     float64            `db:"duration" json:"duration"`
	LeftChannel  entity.Participant `db:"left_channel" json:"left_channel"`
	RightChannel entity.Participant `db:"right_channel" json:"right_channel"`
	ClientName   string             `db:"client_name" json:"client_name"`
	EmployeeName string             `db:"employee_name" json:"employee_name"`
	Inbound      bool               `db:"inbound" json:"inbound"`
}

// CallMetrics is one row of derived behavioral metrics per task.
// ScriptScore and EmployeeQualityScore are write-once: the scoring engine
// only fills a field that still holds its zero default.
type CallMetrics struct {
	TaskID       uuid.UUID `db:"task_id" json:"task_id"`
	CallDuration float64   `db:"call_duration" json:"call_duration"`
	TimeToAnswer float64   `db:"time_to_answer" json:"time_to_answer"`

	TotalEmployeeSpeech float64 `db:"total_employee_speech" json:"total_employee_speech"`
	TotalClientSpeech   float64 `db:"total_client_speech" json:"total_client_speech"`

	EmployeeClientSpeechRatio float64 `db:"employee_client_speech_ratio" json:"employee_client_speech_ratio"`
	EmployeeSpeechRatio       float64 `db:"employee_speech_ratio" json:"employee_speech_ratio"`
	ClientSpeechRatio         float64 `db:"client_speech_ratio" json:"client_speech_ratio"`

	CallHoldsCount int `db:"call_holds_count" json:"call_holds_count"`

	SilencePauseCount    int     `db:"silence_pause_count" json:"silence_pause_count"`
	TotalEmployeeSilence float64 `db:"total_employee_silence" json:"total_employee_silence"`

	ClientInterruptionsCount         int     `db:"client_interruptions_count" json:"client_interruptions_count"`
	TotalClientInterruptionsDuration float64 `db:"total_client_interruptions_duration" json:"total_client_interruptions_duration"`

	AvgEmployeeWordsPerMin float64 `db:"avg_employee_words_per_min" json:"avg_employee_words_per_min"`
	AvgClientWordsPerMin   float64 `db:"avg_client_words_per_min" json:"avg_client_words_per_min"`

	ScriptScore          int `db:"script_score" json:"script_score"`
	EmployeeQualityScore int `db:"employee_quality_score" json:"employee_quality_score"`

	EmotionMode      *entity.Emotion `db:"emotion_mode" json:"emotion_mode,omitempty"`
	EmotionStartMode *entity.Emotion `db:"emotion_start_mode" json:"emotion_start_mode,omitempty"`
	EmotionEndMode   *entity.Emotion `db:"emotion_end_mode" json:"emotion_end_mode,omitempty"`
}

// Dictionary is a named phrase list bound to one participant channel.
type Dictionary struct {
	ID          int32              `db:"id" json:"id"`
	Name        string             `db:"name" json:"name"`
	Participant entity.Participant `db:"participant" json:"participant"`
}

// Phrase is one entry of a dictionary. Texts are stored lowercased;
// matching is case-insensitive regardless.
type Phrase struct {
	ID           int64  `db:"id" json:"id"`
	DictionaryID int32  `db:"dictionary_id" json:"dictionary_id"`
	Text         string `db:"text" json:"text"`
}

// SettingsKind names the two scoring categories a project can configure.
type SettingsKind string

const (
	SettingsKindQuality SettingsKind = "quality"
	SettingsKindScript  SettingsKind = "script"
)

// Settings is one scoring category scoped to a project.
type Settings struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	ProjectID uuid.UUID    `db:"project_id" json:"project_id"`
	Kind      SettingsKind `db:"type" json:"type"`
}

// SettingsItemKind is the rule type of a settings item. Four kinds are
// fixed metric thresholds; all others are dictionary-bound.
type SettingsItemKind string

const (
	SettingsItemSpeechRateRatio SettingsItemKind = "speech_rate_ratio"
	SettingsItemCallHolds       SettingsItemKind = "call_holds"
	SettingsItemSilencePauses   SettingsItemKind = "silence_pauses"
	SettingsItemInterruptions   SettingsItemKind = "interruptions"

	SettingsItemLackingInfoDict     SettingsItemKind = "lacking_info_dict"
	SettingsItemFillerWordsDict     SettingsItemKind = "filler_words_dict"
	SettingsItemSlurredSpeechDict   SettingsItemKind = "slurred_speech_dict"
	SettingsItemProfanitySpeechDict SettingsItemKind = "profanity_speech_dict"
	SettingsItemDictionary          SettingsItemKind = "dictionary"
)

// IsDictionaryBound reports whether the rule is evaluated against
// dictionary containment rather than a fixed metric threshold.
func (k SettingsItemKind) IsDictionaryBound() bool {
	switch k {
	case SettingsItemSpeechRateRatio, SettingsItemCallHolds,
		SettingsItemSilencePauses, SettingsItemInterruptions:
		return false
	}
	return true
}

// SettingsItem is one weighted rule within a category.
type SettingsItem struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	SettingsID  uuid.UUID        `db:"settings_id" json:"settings_id"`
	Immutable   bool             `db:"settings_immutable" json:"settings_immutable"`
	Kind        SettingsItemKind `db:"type" json:"type"`
	Name        string           `db:"name" json:"name"`
	ScoreWeight int              `db:"score_weight" json:"score_weight"`
}

// SettingsDictItem binds a settings item to one dictionary with a
// contains polarity (must the phrases appear, or must they be absent).
type SettingsDictItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	SettingsItemID uuid.UUID `db:"settings_item_id" json:"settings_item_id"`
	DictionaryID   int32     `db:"dictionary_id" json:"dictionary_id"`
	Contains       bool      `db:"contains" json:"contains"`
}

// TaskToDict records whether a dictionary's phrases were observed in a
// task's transcript. One row per (task, dictionary); overwritten on
// reprocessing.
type TaskToDict struct {
	TaskID       uuid.UUID `db:"task_id" json:"task_id"`
	DictionaryID int32     `db:"dictionary_id" json:"dictionary_id"`
	Contains     bool      `db:"contains" json:"contains"`
}
