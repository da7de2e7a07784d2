package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Level is the congestion severity of an area, ordered from least to most congested.
type Level int

const (
	Relaxed Level = iota
	Normal
	SlightlyCongested
	Congested
)

var (
	// ErrUnknownLevel is returned when an upstream label has no Level mapping.
	// A cycle that hits it is rejected as a whole.
	ErrUnknownLevel = errors.New("unknown congestion level")

	// ErrFetch marks a failed upstream fetch.
	ErrFetch = errors.New("fetch failed")
)

var levelLabels = map[Level]string{
	Relaxed:           "여유",
	Normal:            "보통",
	SlightlyCongested: "약간 붐빔",
	Congested:         "붐빔",
}

var levelNames = map[Level]string{
	Relaxed:           "relaxed",
	Normal:            "normal",
	SlightlyCongested: "slightly_congested",
	Congested:         "congested",
}

var labelLevels = func() map[string]Level {
	m := make(map[string]Level, len(levelLabels))
	for level, label := range levelLabels {
		m[label] = level
	}
	return m
}()

// ParseLevel maps an upstream label to a Level.
// Labels are NFC normalized and inner whitespace is collapsed before lookup.
func ParseLevel(label string) (Level, error) {
	key := strings.Join(strings.Fields(norm.NFC.String(label)), " ")
	level, ok := labelLevels[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, label)
	}
	return level, nil
}

func (l Level) Valid() bool {
	return l >= Relaxed && l <= Congested
}

// Label returns the upstream label of the level.
func (l Level) Label() string {
	return levelLabels[l]
}

func (l Level) String() string {
	name, ok := levelNames[l]
	if !ok {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return name
}

func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int(l))
	}
	return json.Marshal(l.Label())
}

func (l *Level) UnmarshalJSON(payload []byte) error {
	var label string
	if err := json.Unmarshal(payload, &label); err != nil {
		return err
	}

	level, err := ParseLevel(label)
	if err != nil {
		return err
	}

	*l = level
	return nil
}

// ShouldAlert reports whether moving from previous to current is alert-worthy.
// seen is false when the area has no previous observation.
//
// Entering congestion alerts once, holding at SlightlyCongested does not
// re-alert, and Congested alerts on every observation.
func ShouldAlert(previous Level, seen bool, current Level) bool {
	if !seen {
		return current == SlightlyCongested || current == Congested
	}

	if current == Congested {
		return true
	}

	return previous <= Normal && current == SlightlyCongested
}
