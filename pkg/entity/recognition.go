package entity

import (
	"encoding/json"
	"fmt"
)

// Participant identifies which side of the call a channel belongs to.
type Participant string

const (
	ParticipantEmployee Participant = "employee"
	ParticipantClient   Participant = "client"
)

// Valid reports whether the participant is one of the known values.
func (p Participant) Valid() bool {
	return p == ParticipantEmployee || p == ParticipantClient
}

// Emotion is one label of the recognition service's emotion track.
type Emotion string

const (
	EmotionNeutral  Emotion = "neutral"
	EmotionPositive Emotion = "positive"
	EmotionAngry    Emotion = "angry"
	EmotionSad      Emotion = "sad"
	EmotionOther    Emotion = "other"
)

// Interval is a half-open [Start, End) time range in seconds from call start.
// The recognition service encodes intervals as two-element JSON arrays.
type Interval struct {
	Start float64
	End   float64
}

// Duration returns End - Start.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// Overlaps reports whether two intervals share any time.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}

// MarshalJSON encodes the interval as [start, end].
func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{i.Start, i.End})
}

// UnmarshalJSON decodes a [start, end] pair.
func (i *Interval) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("interval must be a [start, end] pair: %w", err)
	}
	i.Start = pair[0]
	i.End = pair[1]
	return nil
}

// Utterance is one recognized speech segment with its speaker and timing.
type Utterance struct {
	Text       string      `json:"text"`
	Timestamps Interval    `json:"timestamps"`
	Speaker    Participant `json:"speaker"`
}

// PhraseTimestamps holds the speech intervals of each channel, in
// chronological order as returned by the recognition service.
type PhraseTimestamps struct {
	Client   []Interval `json:"client"`
	Employee []Interval `json:"employee"`
}

// CallHolds holds the intervals where the call was on hold, split by how
// the hold sounded on the line.
type CallHolds struct {
	Music  []Interval `json:"music"`
	Silent []Interval `json:"silent"`
}

// RecognitionData is the full response of the recognition service for
// one call: transcript segments, an emotion label sequence, per-channel
// speech timing and hold annotations. It is never persisted as a row,
// only indexed and summarized into call metrics.
type RecognitionData struct {
	CallHolds        CallHolds        `json:"call_holds"`
	Emotions         []Emotion        `json:"emotion_recognition_result"`
	PhraseTimestamps PhraseTimestamps `json:"phrase_timestamps"`
	Utterances       []Utterance      `json:"speech_recognition_result"`
}
