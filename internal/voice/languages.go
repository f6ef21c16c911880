package voice

import (
	"strings"
)

var languageTable = []struct {
	code string
	name string
}{
	{"en-us", "English (US)"},
	{"en-gb", "English (UK)"},
	{"en-au", "English (Australia)"},
	{"en-ca", "English (Canada)"},
	{"en-in", "English (India)"},
	{"en-ie", "English (Ireland)"},
	{"fr-fr", "French"},
	{"fr-ca", "French (Canada)"},
	{"de-de", "German"},
	{"it-it", "Italian"},
	{"es-es", "Spanish (Spain)"},
	{"es-mx", "Spanish (Mexico)"},
	{"pt-pt", "Portuguese"},
	{"pt-br", "Portuguese (Brazil)"},
	{"ru-ru", "Russian"},
	{"zh-cn", "Chinese (Simplified)"},
	{"zh-tw", "Chinese (Traditional)"},
	{"ja-jp", "Japanese"},
	{"ko-kr", "Korean"},
	{"ar-sa", "Arabic"},
	{"sq", "Albanian"},
	{"sq-al", "Albanian"},
	{"el", "Greek"},
	{"el-gr", "Greek"},
}

var languageNames = func() map[string]string {
	names := make(map[string]string, len(languageTable))
	for _, entry := range languageTable {
		names[entry.code] = entry.name
	}

	return names
}()

// regionalCodes maps bare language codes to the regional form expected by VoiceRSS.
var regionalCodes = map[string]string{
	"en": "en-us",
	"fr": "fr-fr",
	"de": "de-de",
	"es": "es-es",
	"it": "it-it",
	"pt": "pt-pt",
	"ru": "ru-ru",
	"ja": "ja-jp",
	"zh": "zh-cn",
	"ko": "ko-kr",
	"ar": "ar-sa",
	"sq": "sq-al",
	"el": "el-gr",
}

// LanguageName returns a human-readable name for a locale code.
//
// The exact code is tried first, then any regional code sharing the primary subtag
// ("en-nz" resolves to the first "en-" entry), and finally the code is returned unchanged.
func LanguageName(code string) string {
	normalized := NormalizeLanguage(code)

	if name, ok := languageNames[normalized]; ok {
		return name
	}

	if primary, _, found := strings.Cut(normalized, "-"); found {
		for _, entry := range languageTable {
			if strings.HasPrefix(entry.code, primary+"-") {
				return entry.name
			}
		}
	}

	return code
}

// RegionalCode expands a two-letter code to its regional form ("en" -> "en-us").
// Unknown two-letter codes are doubled ("xx" -> "xx-xx"); longer codes are returned normalized.
func RegionalCode(code string) string {
	normalized := NormalizeLanguage(code)
	if len(normalized) != 2 {
		return normalized
	}

	if regional, ok := regionalCodes[normalized]; ok {
		return regional
	}

	return normalized + "-" + normalized
}
