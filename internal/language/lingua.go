package language

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// DefaultLanguages are the candidate languages for the lingua detector: the
// languages Hebrew-script posts on the network are most often confused with
// or mixed with.
var DefaultLanguages = []lingua.Language{
	lingua.Hebrew,
	lingua.English,
	lingua.Arabic,
	lingua.Persian,
	lingua.Russian,
	lingua.Ukrainian,
	lingua.French,
	lingua.Spanish,
	lingua.German,
}

// LinguaDetector is a Detector backed by lingua-go. It is safe for concurrent
// use.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLinguaDetector builds a detector over languages, or DefaultLanguages
// when none are given. Models are loaded eagerly.
func NewLinguaDetector(languages ...lingua.Language) *LinguaDetector {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return &LinguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithPreloadedLanguageModels().
			Build(),
	}
}

// Detect returns the lowercase ISO 639-1 code of the most likely language.
func (d *LinguaDetector) Detect(text string) (string, float64, bool) {
	values := d.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return "", 0, false
	}
	top := values[0]
	if top.Value() <= 0 || top.Language() == lingua.Unknown {
		return "", 0, false
	}
	return strings.ToLower(top.Language().IsoCode639_1().String()), top.Value(), true
}
