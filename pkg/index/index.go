package index

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callai-worker/pkg/entity"
	apperrors "callai-worker/pkg/errors"
)

const (
	employeeTranscriptField = "employee_transcript"
	clientTranscriptField   = "client_transcript"
	payloadField            = "payload"

	transcriptAnalyzer = "transcript"
)

// SearchIndex stores per-channel transcript text per task and answers
// phrase containment queries against it.
type SearchIndex interface {
	IndexRecognition(taskID uuid.UUID, data *entity.RecognitionData) error
	SearchPhrase(taskID uuid.UUID, phrase string, speaker entity.Participant) (bool, error)
	LoadPayload(taskID uuid.UUID) ([]byte, error)
}

// BleveIndex is the durable SearchIndex implementation. Documents are
// keyed by task id, so re-indexing a task replaces its document in place.
// Physical writes are serialized through a single mutex-guarded writer;
// readers run concurrently against the committed state.
type BleveIndex struct {
	index   bleve.Index
	writeMu sync.Mutex
	logger  *logrus.Logger
}

// New opens the index at path, creating it with the transcript schema when
// it does not exist yet. Schema and storage errors are fatal: the process
// cannot run without its index.
func New(path string, logger *logrus.Logger) (*BleveIndex, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		logger.WithField("path", path).Info("Creating transcript index")

		indexMapping, mapErr := buildIndexMapping()
		if mapErr != nil {
			return nil, fmt.Errorf("failed to build index mapping: %w", mapErr)
		}

		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIndexStorage,
			fmt.Sprintf("failed to open transcript index at %s: %v", path, err))
	}

	return &BleveIndex{index: idx, logger: logger}, nil
}

// NewInMemory creates a memory-only index, used by tests.
func NewInMemory(logger *logrus.Logger) (*BleveIndex, error) {
	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to build index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}

	return &BleveIndex{index: idx, logger: logger}, nil
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// IndexRecognition writes one document per task: the space-joined
// transcript of each channel plus the raw recognition payload. The write
// is visible to readers as soon as this returns.
func (b *BleveIndex) IndexRecognition(taskID uuid.UUID, data *entity.RecognitionData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal recognition payload: %w", err)
	}

	doc := map[string]interface{}{
		employeeTranscriptField: channelTranscript(data.Utterances, entity.ParticipantEmployee),
		clientTranscriptField:   channelTranscript(data.Utterances, entity.ParticipantClient),
		payloadField:            string(payload),
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.index.Index(taskID.String(), doc); err != nil {
		return apperrors.Wrap(apperrors.ErrIndexStorage,
			fmt.Sprintf("failed to index transcript for task %s: %v", taskID, err))
	}

	b.logger.WithField("task_id", taskID).Debug("Transcript indexed")
	return nil
}

// SearchPhrase reports whether the phrase occurs in the given channel's
// transcript of one task. Multi-word phrases must appear as an adjacent
// token sequence; both paths use the same analyzer as indexing.
func (b *BleveIndex) SearchPhrase(taskID uuid.UUID, phrase string, speaker entity.Participant) (bool, error) {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return false, nil
	}

	field := employeeTranscriptField
	if speaker == entity.ParticipantClient {
		field = clientTranscriptField
	}

	var phraseQuery query.Query
	if len(words) > 1 {
		q := bleve.NewMatchPhraseQuery(phrase)
		q.SetField(field)
		phraseQuery = q
	} else {
		q := bleve.NewMatchQuery(phrase)
		q.SetField(field)
		phraseQuery = q
	}

	taskQuery := query.NewDocIDQuery([]string{taskID.String()})
	request := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(phraseQuery, taskQuery), 1, 0, false)

	result, err := b.index.Search(request)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrIndexStorage,
			fmt.Sprintf("phrase search failed for task %s: %v", taskID, err))
	}

	return result.Total > 0, nil
}

// LoadPayload returns the raw recognition payload indexed for a task.
func (b *BleveIndex) LoadPayload(taskID uuid.UUID) ([]byte, error) {
	request := bleve.NewSearchRequestOptions(query.NewDocIDQuery([]string{taskID.String()}), 1, 0, false)
	request.Fields = []string{payloadField}

	result, err := b.index.Search(request)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIndexStorage,
			fmt.Sprintf("payload lookup failed for task %s: %v", taskID, err))
	}

	if result.Total == 0 {
		return nil, apperrors.NewTranscriptNotFound(taskID.String())
	}

	payload, ok := result.Hits[0].Fields[payloadField].(string)
	if !ok {
		return nil, apperrors.New(fmt.Sprintf("indexed document for task %s has no payload", taskID))
	}

	return []byte(payload), nil
}

func channelTranscript(utterances []entity.Utterance, speaker entity.Participant) string {
	var parts []string
	for _, utterance := range utterances {
		if utterance.Speaker == speaker {
			parts = append(parts, utterance.Text)
		}
	}
	return strings.Join(parts, " ")
}

func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(transcriptAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(employeeTranscriptField, newTranscriptFieldMapping())
	docMapping.AddFieldMappingsAt(clientTranscriptField, newTranscriptFieldMapping())

	payloadMapping := bleve.NewTextFieldMapping()
	payloadMapping.Index = false
	payloadMapping.Store = true
	payloadMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(payloadField, payloadMapping)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = transcriptAnalyzer

	return indexMapping, nil
}

func newTranscriptFieldMapping() *mapping.FieldMapping {
	fieldMapping := bleve.NewTextFieldMapping()
	fieldMapping.Analyzer = transcriptAnalyzer
	fieldMapping.Store = false
	fieldMapping.IncludeInAll = false
	// Term positions are required for adjacent-sequence phrase queries.
	fieldMapping.IncludeTermVectors = true
	return fieldMapping
}
