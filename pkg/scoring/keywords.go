package scoring

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callai-worker/pkg/database"
	"callai-worker/pkg/index"
	"callai-worker/pkg/util"
)

// MatchDictionaries checks every dictionary with at least one phrase
// against the task's indexed transcript, on the dictionary's channel.
// A dictionary counts as contained as soon as any of its phrases is
// found. The result set carries one row per matched-over dictionary.
func MatchDictionaries(
	searchIndex index.SearchIndex,
	taskID uuid.UUID,
	dictionaries []database.Dictionary,
	phrases []database.Phrase,
	logger *logrus.Logger,
) ([]database.TaskToDict, error) {
	phrasesByDict := util.GroupBy(phrases, func(p database.Phrase) int32 { return p.DictionaryID })

	knownDicts := make(map[int32]struct{}, len(dictionaries))
	for _, dict := range dictionaries {
		knownDicts[dict.ID] = struct{}{}
	}
	for dictID := range phrasesByDict {
		if _, ok := knownDicts[dictID]; !ok {
			logger.WithField("dictionary_id", dictID).Warn("Skipping phrases of non-existing dictionary")
		}
	}

	var matches []database.TaskToDict
	for _, dict := range dictionaries {
		dictPhrases := phrasesByDict[dict.ID]
		if len(dictPhrases) == 0 {
			continue
		}

		contains := false
		for _, phrase := range dictPhrases {
			found, err := searchIndex.SearchPhrase(taskID, phrase.Text, dict.Participant)
			if err != nil {
				return nil, err
			}
			if found {
				contains = true
				break
			}
		}

		matches = append(matches, database.TaskToDict{
			TaskID:       taskID,
			DictionaryID: dict.ID,
			Contains:     contains,
		})
	}

	return matches, nil
}
