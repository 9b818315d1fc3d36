package transcript

import (
	"regexp"
	"strings"
)

// Recognizer output carries non-speech annotations, hallucinated boilerplate
// and glued-together words. CleanSegmentText runs the ordered repair pipeline
// over one raw segment; an empty result means the segment is dropped.

var noiseKeywords = []string{
	"click", "type", "typing", "keyboard", "music", "applause", "laughter",
	"cough", "sneeze", "noise", "sound", "static", "background", "breathing",
}

var boilerplatePhrases = []string{
	"thanks for watching",
	"thank you for watching",
	"thank you so much for watching",
	"please subscribe",
	"don't forget to subscribe",
	"see you next time",
	"see you in the next video",
	"see you in the next one",
}

// Short fragments that are legitimate words rather than stray noise letters.
var validShortWords = map[string]bool{
	"a": true, "i": true, "oh": true, "ok": true, "no": true,
	"go": true, "hi": true, "so": true, "um": true, "uh": true,
}

// Lowercased letters-only strings the recognizer emits for keyboard and
// mouth noises.
var noiseWords = map[string]bool{
	"tick": true, "tock": true, "click": true, "clack": true, "pop": true,
	"beep": true, "boop": true, "ding": true, "tap": true, "thump": true,
	"shh": true, "hm": true, "hmm": true, "mm": true, "mhm": true,
}

// Words the recognizer tends to glue onto the preceding token. Only words
// that do not form the tail of a common English word are safe to list here,
// since the repair fires on any letter immediately preceding them.
var gluedWords = []string{
	"seems", "would", "because", "actually", "really",
}

var (
	blankAudioRe  *regexp.Regexp
	bracketRe     *regexp.Regexp
	parenRe       *regexp.Regexp
	asteriskRe    *regexp.Regexp
	boilerplateRe *regexp.Regexp
	spacesRe      = regexp.MustCompile(`\s+`)
	lettersRe     = regexp.MustCompile(`[^a-zA-Z]+`)
	gluedRes      []*regexp.Regexp
)

func init() {
	alt := strings.Join(noiseKeywords, "|")
	blankAudioRe = regexp.MustCompile(`(?i)[\[\(\*_]*\s*blank[\s_]*audio\s*[\]\)\*_]*`)
	bracketRe = regexp.MustCompile(`(?i)\[[^\]]*(?:` + alt + `)[^\]]*\]`)
	parenRe = regexp.MustCompile(`(?i)\([^)]*(?:` + alt + `)[^)]*\)`)
	asteriskRe = regexp.MustCompile(`(?i)\*[^*]*(?:` + alt + `)[^*]*\*`)

	phrases := make([]string, len(boilerplatePhrases))
	for i, p := range boilerplatePhrases {
		phrases[i] = regexp.QuoteMeta(p)
	}
	boilerplateRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(phrases, "|") + `)[.!]*`)

	for _, w := range gluedWords {
		gluedRes = append(gluedRes, regexp.MustCompile(`(?i)([a-z])(`+w+`)\b`))
	}
}

// CleanSegmentText applies the filter pipeline to one raw segment text.
// Order matters: annotations are stripped before the length-based gates so a
// segment that was pure noise collapses to empty instead of leaking letters.
func CleanSegmentText(raw string) string {
	text := blankAudioRe.ReplaceAllString(raw, "")
	text = bracketRe.ReplaceAllString(text, "")
	text = parenRe.ReplaceAllString(text, "")
	text = asteriskRe.ReplaceAllString(text, "")

	text = boilerplateRe.ReplaceAllString(text, "")

	text = strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
	if text == "" {
		return ""
	}

	letters := strings.ToLower(lettersRe.ReplaceAllString(text, ""))
	if len(letters) < 2 && !validShortWords[letters] {
		return ""
	}
	if noiseWords[letters] {
		return ""
	}

	for _, re := range gluedRes {
		text = re.ReplaceAllString(text, "$1 $2")
	}

	return text
}
