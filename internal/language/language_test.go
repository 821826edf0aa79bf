package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasHebrewScript(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain hebrew", "שלום עולם", true},
		{"mixed", "check this out: חדשות", true},
		{"single letter", "a ב c", true},
		{"presentation form", "אַ", true},
		{"yiddish ligature", "װ", true},
		{"niqqud only", "ַ", true},
		{"english", "hello world", false},
		{"arabic", "مرحبا بالعالم", false},
		{"empty", "", false},
		{"emoji", "🙂🙂", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasHebrewScript(tt.text))
		})
	}
}

// hebrewScriptRunes lists every character Hebrew or Yiddish text is written
// with: the 27 letters including final forms, the points and cantillation
// marks used for vocalization, the Yiddish ligatures and the presentation
// forms block.
func hebrewScriptRunes() []rune {
	runes := []rune("אבגדהוזחטיכךלמםנןסעפףצץקרשת")
	for r := rune(0x05B0); r <= 0x05BD; r++ {
		runes = append(runes, r)
	}
	runes = append(runes, 0x05BF, 0x05C1, 0x05C2, 0x05C4, 0x05C5, 0x05C7)
	runes = append(runes, 0x05F0, 0x05F1, 0x05F2, 0x05F3, 0x05F4)
	for r := rune(0xFB1D); r <= 0xFB4F; r++ {
		runes = append(runes, r)
	}
	return runes
}

func TestHasHebrewScript_EveryHebrewCharacter(t *testing.T) {
	runes := hebrewScriptRunes()
	require.Len(t, runes, 27+14+6+5+51)

	for _, r := range runes {
		for _, text := range []string{
			string(r),
			"hello " + string(r) + " world",
			"check this out:" + string(r),
			string(r) + "... see https://example.com",
		} {
			assert.True(t, HasHebrewScript(text), "rune %U in %q", r, text)
		}
	}
}

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		facets []Facet
		want   string
	}{
		{
			name:   "single link",
			text:   "hello http://x.example world",
			facets: []Facet{{Start: 6, End: 22}},
			want:   "hello  world",
		},
		{
			name:   "two annotations removed back to front",
			text:   "@a.example שלום https://b.example",
			facets: []Facet{{Start: 20, End: 37}, {Start: 0, End: 10}},
			want:   "שלום",
		},
		{
			name:   "unsorted and overlapping",
			text:   "0123456789abc",
			facets: []Facet{{Start: 5, End: 8}, {Start: 2, End: 6}, {Start: 10, End: 11}},
			want:   "0189bc",
		},
		{
			name:   "out of range facets ignored",
			text:   "שלום",
			facets: []Facet{{Start: -1, End: 2}, {Start: 3, End: 100}, {Start: 4, End: 4}},
			want:   "שלום",
		},
		{
			name:   "split multibyte rune dropped",
			text:   "שלום",
			facets: []Facet{{Start: 1, End: 2}},
			want:   "לום",
		},
		{
			name: "no facets",
			text: "  רק טקסט  ",
			want: "רק טקסט",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepareText(tt.text, tt.facets))
		})
	}
}

type stubDetector struct {
	label      string
	confidence float64
	ok         bool
	panics     bool
}

func (s stubDetector) Detect(string) (string, float64, bool) {
	if s.panics {
		panic("boom")
	}
	if s.label == "" {
		return "", 0, s.ok
	}
	return s.label, s.confidence, true
}

func TestClassifier_Classify(t *testing.T) {
	t.Run("hebrew stays hebrew", func(t *testing.T) {
		c := NewClassifier(stubDetector{label: Hebrew, confidence: 0.93})
		assert.Equal(t, Result{Label: Hebrew, Confidence: 0.93}, c.Classify("שלום לכולם, מה שלומכם היום?"))
	})

	t.Run("yiddish refines hebrew", func(t *testing.T) {
		c := NewClassifier(stubDetector{label: Hebrew, confidence: 0.93})
		res := c.Classify("דאס איז א שיינע טאג און מיר גייען אויף שפאציר")
		assert.Equal(t, Yiddish, res.Label)
		assert.Greater(t, res.Confidence, 0.0)
	})

	t.Run("other languages pass through", func(t *testing.T) {
		c := NewClassifier(stubDetector{label: "en", confidence: 0.7})
		assert.Equal(t, Result{Label: "en", Confidence: 0.7}, c.Classify("hello שלום"))
	})

	t.Run("undecided detector", func(t *testing.T) {
		c := NewClassifier(stubDetector{})
		assert.Equal(t, UnknownResult, c.Classify("שלום"))
	})

	t.Run("empty text", func(t *testing.T) {
		c := NewClassifier(stubDetector{label: Hebrew, confidence: 1})
		assert.Equal(t, UnknownResult, c.Classify("   "))
	})

	t.Run("panicking detector", func(t *testing.T) {
		c := NewClassifier(stubDetector{panics: true})
		assert.Equal(t, UnknownResult, c.Classify("שלום"))
	})
}

func TestYiddishScore(t *testing.T) {
	assert.GreaterOrEqual(t, yiddishScore("איך בין אַ ייִד און איך רעד ייִדיש"), yiddishThreshold)
	assert.GreaterOrEqual(t, yiddishScore("ײדיש"), yiddishThreshold, "ligature")
	assert.Less(t, yiddishScore("איך אתה מרגיש היום? אני בסדר גמור"), yiddishThreshold)
	assert.Less(t, yiddishScore("בְּרֵאשִׁית בָּרָא אֱלֹהִים אֵת הַשָּׁמַיִם וְאֵת הָאָרֶץ"), yiddishThreshold, "vocalized hebrew")
	assert.Equal(t, 0.0, yiddishScore("hello world"))
}

func TestLinguaDetector(t *testing.T) {
	if testing.Short() {
		t.Skip("loads language models")
	}
	d := NewLinguaDetector()

	label, confidence, ok := d.Detect("היום הלכתי לים עם החברים שלי ונהנינו מאוד מהשמש")
	require.True(t, ok)
	assert.Equal(t, Hebrew, label)
	assert.Greater(t, confidence, 0.5)

	label, _, ok = d.Detect("The weather in Tel Aviv is lovely this morning")
	require.True(t, ok)
	assert.Equal(t, "en", label)
}

func TestAuthorPolicy_Apply(t *testing.T) {
	p := DefaultAuthorPolicy
	hebrewAuthor := AuthorLanguage{Language: Hebrew, Share: 0.9, Posts: 20}

	tests := []struct {
		name   string
		result Result
		author AuthorLanguage
		found  bool
		want   Result
	}{
		{
			name:   "confident result kept",
			result: Result{Label: "en", Confidence: 0.9},
			author: hebrewAuthor,
			found:  true,
			want:   Result{Label: "en", Confidence: 0.9},
		},
		{
			name:   "unknown overridden",
			result: UnknownResult,
			author: hebrewAuthor,
			found:  true,
			want:   Result{Label: Hebrew, Confidence: 0.9, FromAuthor: true},
		},
		{
			name:   "weak result overridden",
			result: Result{Label: "ar", Confidence: 0.3},
			author: hebrewAuthor,
			found:  true,
			want:   Result{Label: Hebrew, Confidence: 0.9, FromAuthor: true},
		},
		{
			name:   "too few posts",
			result: UnknownResult,
			author: AuthorLanguage{Language: Hebrew, Share: 1, Posts: 2},
			found:  true,
			want:   UnknownResult,
		},
		{
			name:   "share too low",
			result: UnknownResult,
			author: AuthorLanguage{Language: Yiddish, Share: 0.6, Posts: 50},
			found:  true,
			want:   UnknownResult,
		},
		{
			name:   "untracked dominant language",
			result: UnknownResult,
			author: AuthorLanguage{Language: "en", Share: 1, Posts: 50},
			found:  true,
			want:   UnknownResult,
		},
		{
			name:   "no history",
			result: UnknownResult,
			want:   UnknownResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Apply(tt.result, tt.author, tt.found))
		})
	}
}
