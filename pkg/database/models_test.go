package database

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSettingsItemKindIsDictionaryBound(t *testing.T) {
	metricKinds := []SettingsItemKind{
		SettingsItemSpeechRateRatio,
		SettingsItemCallHolds,
		SettingsItemSilencePauses,
		SettingsItemInterruptions,
	}
	for _, kind := range metricKinds {
		assert.False(t, kind.IsDictionaryBound(), "kind %s", kind)
	}

	dictKinds := []SettingsItemKind{
		SettingsItemLackingInfoDict,
		SettingsItemFillerWordsDict,
		SettingsItemSlurredSpeechDict,
		SettingsItemProfanitySpeechDict,
		SettingsItemDictionary,
	}
	for _, kind := range dictKinds {
		assert.True(t, kind.IsDictionaryBound(), "kind %s", kind)
	}
}
