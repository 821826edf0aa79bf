package language

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Detector labels text with a language code and a confidence in [0, 1].
// ok is false when the detector cannot decide.
type Detector interface {
	Detect(text string) (label string, confidence float64, ok bool)
}

// Classifier turns prepared post text into a language Result.
type Classifier struct {
	detector Detector
}

// NewClassifier returns a Classifier backed by detector.
func NewClassifier(detector Detector) *Classifier {
	return &Classifier{detector: detector}
}

// Classify labels text. It never fails: detector errors and panics yield
// UnknownResult.
func (c *Classifier) Classify(text string) (res Result) {
	text = strings.TrimSpace(text)
	if text == "" {
		return UnknownResult
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("language: detector panicked")
			res = UnknownResult
		}
	}()

	label, confidence, ok := c.detector.Detect(text)
	if !ok || label == "" {
		return UnknownResult
	}

	if label == Hebrew || label == HebrewLegacy {
		if score := yiddishScore(text); score >= yiddishThreshold {
			return Result{Label: Yiddish, Confidence: score}
		}
	}

	return Result{Label: label, Confidence: confidence}
}
