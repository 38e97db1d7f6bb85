package scoring

import (
	"math"

	"github.com/google/uuid"

	"callai-worker/pkg/database"
	apperrors "callai-worker/pkg/errors"
	"callai-worker/pkg/util"
)

// TaskSettingsItemMetric is the scored outcome of one weighted rule.
// Scores are normalized so a fully-matched category totals 100.
type TaskSettingsItemMetric struct {
	SettingsItem database.SettingsItem `json:"settings_item"`
	Score        int                   `json:"score"`
}

// TaskSettingsMetrics is the scored outcome of one category.
type TaskSettingsMetrics struct {
	Settings   database.Settings        `json:"settings"`
	TotalScore int                      `json:"total_score"`
	Items      []TaskSettingsItemMetric `json:"items"`
}

// ScoreSettings evaluates every scoring category against the computed
// call metrics and the observed dictionary containment, and writes each
// category total into the matching write-once field of metrics
// (ScriptScore or EmployeeQualityScore). A field already holding a
// nonzero value keeps it.
//
// Every category is validated before any scoring happens: a category
// with no items, a zero weight sum, or an unknown kind fails the whole
// call without partial writes.
func ScoreSettings(
	taskToDicts []database.TaskToDict,
	metrics *database.CallMetrics,
	settings []database.Settings,
	settingsItems []database.SettingsItem,
	settingsDictItems []database.SettingsDictItem,
) ([]TaskSettingsMetrics, error) {
	dictContains := make(map[int32]bool, len(taskToDicts))
	for _, ttd := range taskToDicts {
		dictContains[ttd.DictionaryID] = ttd.Contains
	}

	itemsBySettings := util.GroupBy(settingsItems, func(item database.SettingsItem) uuid.UUID {
		return item.SettingsID
	})
	dictItemsByItem := util.GroupBy(settingsDictItems, func(item database.SettingsDictItem) uuid.UUID {
		return item.SettingsItemID
	})

	scoreFields := map[database.SettingsKind]*int{
		database.SettingsKindScript:  &metrics.ScriptScore,
		database.SettingsKindQuality: &metrics.EmployeeQualityScore,
	}

	factors := make(map[uuid.UUID]float64, len(settings))
	for _, category := range settings {
		if _, ok := scoreFields[category.Kind]; !ok {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown settings kind", map[string]interface{}{
				"settings_id": category.ID.String(),
				"type":        string(category.Kind),
			})
		}

		items := itemsBySettings[category.ID]
		weightSum := 0
		for _, item := range items {
			weightSum += item.ScoreWeight
		}
		if len(items) == 0 || weightSum <= 0 {
			return nil, apperrors.NewNoScoringItems(category.ID.String(), map[string]interface{}{
				"type": string(category.Kind),
			})
		}
		factors[category.ID] = 100.0 / float64(weightSum)
	}

	result := make([]TaskSettingsMetrics, 0, len(settings))
	for _, category := range settings {
		factor := factors[category.ID]

		totalScore := 0
		items := itemsBySettings[category.ID]
		itemMetrics := make([]TaskSettingsItemMetric, 0, len(items))
		for _, item := range items {
			matched := itemMatches(item, metrics, dictItemsByItem[item.ID], dictContains)

			score := 0
			if matched {
				score = int(math.Round(float64(item.ScoreWeight) * factor))
			}

			totalScore += score
			itemMetrics = append(itemMetrics, TaskSettingsItemMetric{
				SettingsItem: item,
				Score:        score,
			})
		}

		if field := scoreFields[category.Kind]; *field == 0 {
			*field = totalScore
		}

		result = append(result, TaskSettingsMetrics{
			Settings:   category,
			TotalScore: totalScore,
			Items:      itemMetrics,
		})
	}

	return result, nil
}

// itemMatches applies one rule to the call. The four metric kinds check
// fixed thresholds; every other kind is dictionary-bound.
func itemMatches(
	item database.SettingsItem,
	metrics *database.CallMetrics,
	bindings []database.SettingsDictItem,
	dictContains map[int32]bool,
) bool {
	switch item.Kind {
	case database.SettingsItemCallHolds:
		return metrics.CallHoldsCount == 0
	case database.SettingsItemSilencePauses:
		return metrics.SilencePauseCount == 0
	case database.SettingsItemInterruptions:
		return metrics.ClientInterruptionsCount == 0
	case database.SettingsItemSpeechRateRatio:
		return metrics.EmployeeClientSpeechRatio >= 80.0 && metrics.EmployeeClientSpeechRatio <= 120.0
	}

	// Absence bindings make the rule strict: every binding has to agree
	// with the observed containment, and an unobserved dictionary counts
	// as agreeing. Presence-only rules match on the first agreeing
	// binding, and an unobserved dictionary counts as disagreeing.
	requireAll := false
	for _, binding := range bindings {
		if !binding.Contains {
			requireAll = true
			break
		}
	}

	if requireAll {
		for _, binding := range bindings {
			contains, observed := dictContains[binding.DictionaryID]
			if observed && contains != binding.Contains {
				return false
			}
		}
		return true
	}

	for _, binding := range bindings {
		contains, observed := dictContains[binding.DictionaryID]
		if observed && contains == binding.Contains {
			return true
		}
	}
	return false
}
