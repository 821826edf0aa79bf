package language

import (
	"strings"
	"unicode"
)

const yiddishThreshold = 0.25

// Function words that are frequent in Yiddish and do not occur as ordinary
// Hebrew words. Lookups use the text with points removed.
var yiddishWords = map[string]struct{}{
	"איז": {}, "און": {}, "ניט": {}, "נישט": {}, "דער": {}, "דאס": {},
	"פון": {}, "מיט": {}, "אויף": {}, "אויך": {}, "וואס": {}, "האט": {},
	"זיך": {}, "ער": {}, "זי": {}, "עס": {}, "אבער": {}, "ווען": {},
	"וועט": {}, "געווען": {}, "נאך": {}, "שוין": {}, "גוט": {}, "קען": {},
	"וויל": {}, "ביז": {}, "הייסט": {}, "זאגן": {}, "געזאגט": {},
	"מענטשן": {}, "יידן": {}, "יידיש": {}, "אונדז": {}, "דעם": {},
	"זייער": {}, "וועלט": {}, "ווייל": {}, "אזוי": {}, "איצט": {},
}

// Ligatures used only in Yiddish orthography: double vav, vav yod, double yod
// and its pointed form.
var yiddishLigatures = []rune{0x05F0, 0x05F1, 0x05F2, 0xFB1F}

// yiddishScore estimates how Yiddish a Hebrew-script text is, from 0 to 1.
func yiddishScore(text string) float64 {
	tokens := hebrewWords(text)
	if len(tokens) == 0 {
		return 0
	}

	hits := 0
	for _, tok := range tokens {
		if _, ok := yiddishWords[tok]; ok {
			hits++
		}
	}
	score := float64(hits) / float64(len(tokens))
	if hasYiddishOrthography(text) {
		score += 0.3
	}
	return min(score, 1)
}

// hasYiddishOrthography looks for ligatures or for pointing that is limited
// to the letters Yiddish spelling points (pointed alef, hiriq after yod).
// Fully vocalized Hebrew points nearly every letter, so the pointing signal
// only counts when most points are of the Yiddish kind.
func hasYiddishOrthography(text string) bool {
	for _, r := range text {
		for _, l := range yiddishLigatures {
			if r == l {
				return true
			}
		}
	}

	var prev rune
	points, yiddishPoints := 0, 0
	for _, r := range text {
		switch {
		case r == 0xFB2E || r == 0xFB2F:
			yiddishPoints++
			points++
		case isPoint(r):
			points++
			if (prev == 'א' && (r == 0x05B7 || r == 0x05B8)) || (prev == 'י' && r == 0x05B4) {
				yiddishPoints++
			}
		}
		prev = r
	}
	return yiddishPoints > 0 && yiddishPoints*2 >= points
}

func isPoint(r rune) bool {
	return r >= 0x0591 && r <= 0x05C7 && unicode.Is(unicode.Mn, r)
}

// hebrewWords splits text into words made of Hebrew letters, with points and
// presentation forms folded to plain letters.
func hebrewWords(text string) []string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case isPoint(r):
			continue
		case r == 0xFB2E || r == 0xFB2F:
			b.WriteRune('א')
		case r == 0x05F0:
			b.WriteString("וו")
		case r == 0x05F1:
			b.WriteString("וי")
		case r == 0x05F2 || r == 0xFB1F:
			b.WriteString("יי")
		case r >= 0x05D0 && r <= 0x05EA:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}
