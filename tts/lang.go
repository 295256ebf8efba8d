package tts

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// languages maps accepted codes, including common aliases, to the code the
// speech endpoint expects.
var languages = map[string]string{
	"af": "af", "ar": "ar", "bg": "bg", "bn": "bn", "bs": "bs", "ca": "ca",
	"cs": "cs", "cy": "cy", "da": "da", "de": "de", "el": "el", "en": "en",
	"es": "es", "et": "et", "eu": "eu", "fi": "fi", "fr": "fr", "gl": "gl",
	"gu": "gu", "ha": "ha", "hi": "hi", "hr": "hr", "hu": "hu", "id": "id",
	"is": "is", "it": "it", "ja": "ja", "km": "km", "kn": "kn", "ko": "ko",
	"la": "la", "lt": "lt", "lv": "lv", "ml": "ml", "mr": "mr", "ms": "ms",
	"my": "my", "ne": "ne", "nl": "nl", "pa": "pa", "pl": "pl", "pt": "pt",
	"ro": "ro", "ru": "ru", "si": "si", "sk": "sk", "sq": "sq", "sr": "sr",
	"su": "su", "sv": "sv", "sw": "sw", "ta": "ta", "te": "te", "th": "th",
	"tr": "tr", "uk": "uk", "ur": "ur", "vi": "vi", "yue": "yue",
	"iw": "iw", "he": "iw",
	"jw": "jw", "jv": "jw",
	"no": "no", "nb": "no",
	"tl": "tl", "fil": "tl",
	"zh": "zh-CN", "zh-cn": "zh-CN", "zh-hans": "zh-CN",
	"zh-tw": "zh-TW", "zh-hant": "zh-TW",
	"pt-br": "pt", "pt-pt": "pt",
}

// ResolveLanguage validates a BCP 47 language code and returns the code to
// send to the speech endpoint. Regional variants fall back to their base
// language ("en-GB" becomes "en").
func ResolveLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("language is required")
	}
	if l, ok := languages[strings.ToLower(code)]; ok {
		return l, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", code, err)
	}
	if l, ok := languages[strings.ToLower(tag.String())]; ok {
		return l, nil
	}
	base, _ := tag.Base()
	if l, ok := languages[base.String()]; ok {
		return l, nil
	}
	return "", fmt.Errorf("unsupported language %q", code)
}

var tldRe = regexp.MustCompile(`^[a-z]{2,3}(\.[a-z]{2,3})?$`)

// ValidTLD reports whether tld looks like a Google top-level domain such as
// "com", "co.uk" or "com.au".
func ValidTLD(tld string) bool {
	return tldRe.MatchString(tld)
}
