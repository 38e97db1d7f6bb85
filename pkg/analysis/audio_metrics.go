// Package analysis derives behavioral call metrics from recognition data.
// Everything here is pure: no I/O, deterministic output for one input.
package analysis

import (
	"math"
	"sort"
	"strings"

	"callai-worker/pkg/database"
	"callai-worker/pkg/entity"
)

const (
	// minInterruptionOverlap is the minimum overlapped duration for an
	// employee segment to count as interrupting the client, in seconds.
	minInterruptionOverlap = 1.0

	// pauseThreshold is both the minimum employee-to-employee gap that
	// counts as a pause and the margin by which hold intervals are
	// expanded before they suppress pauses, in seconds.
	pauseThreshold = 5.0
)

// isInterruption reports whether the employee interval interrupts the
// client interval: the employee starts while the client is speaking and
// the overlap lasts at least minInterruptionOverlap.
func isInterruption(employee, client entity.Interval) bool {
	overlapStart := math.Max(employee.Start, client.Start)
	overlapEnd := math.Min(employee.End, client.End)

	return employee.Start > client.Start &&
		employee.Start < client.End &&
		overlapEnd-overlapStart >= minInterruptionOverlap
}

// findInterruptions counts employee intervals that interrupt any client
// interval. Each employee interval counts at most once, and the summed
// duration is the employee interval's own length, not the overlap.
func findInterruptions(employee, client []entity.Interval) (count int, totalDuration float64) {
	for _, employeeInterval := range employee {
		for _, clientInterval := range client {
			if isInterruption(employeeInterval, clientInterval) {
				count++
				totalDuration += employeeInterval.Duration()
				break
			}
		}
	}
	return count, totalDuration
}

// timeToAnswer returns the start offset of the first employee interval,
// or 0 when the employee never speaks.
func timeToAnswer(employee []entity.Interval) float64 {
	if len(employee) == 0 {
		return 0.0
	}
	return employee[0].Start
}

// totalSpeechDuration sums the lengths of all intervals.
func totalSpeechDuration(intervals []entity.Interval) float64 {
	var total float64
	for _, interval := range intervals {
		total += interval.Duration()
	}
	return total
}

// speechPercentage returns speech as a percentage of total, 0 when the
// total is zero.
func speechPercentage(speech, total float64) float64 {
	if total == 0.0 {
		return 0.0
	}
	return speech / total * 100.0
}

type taggedInterval struct {
	speaker  entity.Participant
	interval entity.Interval
}

// countPauses registers a pause for every employee-to-employee gap of at
// least pauseThreshold seconds. The gap tracker resets whenever the
// client speaks in between, and a hold interval expanded by the same
// threshold suppresses the pause when it overlaps the upcoming employee
// interval. Returns (0, 0) when either speaker has no intervals.
func countPauses(employee, client []entity.Interval, holds entity.CallHolds) (count int, totalDuration float64) {
	if len(employee) == 0 || len(client) == 0 {
		return 0, 0.0
	}

	holdIntervals := make([]entity.Interval, 0, len(holds.Music)+len(holds.Silent))
	for _, hold := range append(append([]entity.Interval{}, holds.Music...), holds.Silent...) {
		holdIntervals = append(holdIntervals, entity.Interval{
			Start: hold.Start - pauseThreshold,
			End:   hold.End + pauseThreshold,
		})
	}

	intervals := make([]taggedInterval, 0, len(employee)+len(client))
	for _, interval := range employee {
		intervals = append(intervals, taggedInterval{entity.ParticipantEmployee, interval})
	}
	for _, interval := range client {
		intervals = append(intervals, taggedInterval{entity.ParticipantClient, interval})
	}
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].interval.Start < intervals[j].interval.Start
	})

	var previousEnd *float64
	for _, tagged := range intervals {
		if previousEnd != nil &&
			tagged.speaker == entity.ParticipantEmployee &&
			*previousEnd < tagged.interval.Start &&
			tagged.interval.Start-*previousEnd >= pauseThreshold &&
			!anyOverlaps(holdIntervals, tagged.interval) {
			count++
			totalDuration += tagged.interval.Start - *previousEnd
		}

		if tagged.speaker == entity.ParticipantEmployee {
			end := tagged.interval.End
			previousEnd = &end
		} else {
			previousEnd = nil
		}
	}

	return count, totalDuration
}

func anyOverlaps(intervals []entity.Interval, target entity.Interval) bool {
	for _, interval := range intervals {
		if interval.Overlaps(target) {
			return true
		}
	}
	return false
}

// wordsPerMinute computes the speaker's whitespace-delimited word count
// per minute of that speaker's speech time, rounded to the nearest
// integer. Zero speech time yields 0.
func wordsPerMinute(utterances []entity.Utterance, speechSeconds float64, speaker entity.Participant) float64 {
	if speechSeconds == 0.0 {
		return 0.0
	}

	var totalWords int
	for _, utterance := range utterances {
		if utterance.Speaker == speaker {
			totalWords += len(strings.Fields(utterance.Text))
		}
	}

	return math.Round(float64(totalWords) / (speechSeconds / 60.0))
}

// emotionMode returns the most frequent emotion label. Frequency ties
// are broken by first occurrence in the sequence, so the result is
// deterministic. Returns nil for an empty sequence.
func emotionMode(emotions []entity.Emotion) *entity.Emotion {
	if len(emotions) == 0 {
		return nil
	}

	counts := make(map[entity.Emotion]int, len(emotions))
	firstSeen := make(map[entity.Emotion]int, len(emotions))
	for i, emotion := range emotions {
		counts[emotion]++
		if _, seen := firstSeen[emotion]; !seen {
			firstSeen[emotion] = i
		}
	}

	best := emotions[0]
	for emotion, count := range counts {
		if count > counts[best] || (count == counts[best] && firstSeen[emotion] < firstSeen[best]) {
			best = emotion
		}
	}

	return &best
}

// ComputeCallMetrics derives the full metrics row from recognition data.
// The task id and the two rule-engine score fields are filled in by the
// caller and the scoring engine respectively.
func ComputeCallMetrics(data *entity.RecognitionData) database.CallMetrics {
	employee := data.PhraseTimestamps.Employee
	client := data.PhraseTimestamps.Client

	pauseCount, pauseDuration := countPauses(employee, client, data.CallHolds)
	interruptionCount, interruptionDuration := findInterruptions(employee, client)

	totalEmployeeSpeech := totalSpeechDuration(employee)
	totalClientSpeech := totalSpeechDuration(client)

	var callDuration float64
	for _, interval := range append(append([]entity.Interval{}, client...), employee...) {
		if interval.End > callDuration {
			callDuration = interval.End
		}
	}

	metrics := database.CallMetrics{
		CallDuration: callDuration,
		TimeToAnswer: timeToAnswer(employee),

		TotalEmployeeSpeech: totalEmployeeSpeech,
		TotalClientSpeech:   totalClientSpeech,

		EmployeeClientSpeechRatio: speechPercentage(totalEmployeeSpeech, totalClientSpeech),
		EmployeeSpeechRatio:       speechPercentage(totalEmployeeSpeech, callDuration),
		ClientSpeechRatio:         speechPercentage(totalClientSpeech, callDuration),

		CallHoldsCount: len(data.CallHolds.Music) + len(data.CallHolds.Silent),

		SilencePauseCount:    pauseCount,
		TotalEmployeeSilence: pauseDuration,

		ClientInterruptionsCount:         interruptionCount,
		TotalClientInterruptionsDuration: interruptionDuration,

		AvgEmployeeWordsPerMin: wordsPerMinute(data.Utterances, totalEmployeeSpeech, entity.ParticipantEmployee),
		AvgClientWordsPerMin:   wordsPerMinute(data.Utterances, totalClientSpeech, entity.ParticipantClient),

		EmotionMode: emotionMode(data.Emotions),
	}

	if len(data.Emotions) > 0 {
		first := data.Emotions[0]
		last := data.Emotions[len(data.Emotions)-1]
		metrics.EmotionStartMode = &first
		metrics.EmotionEndMode = &last
	}

	return metrics
}
