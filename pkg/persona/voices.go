package persona

// DefaultVoice is used for accents missing from the mapping.
const DefaultVoice = "en-IN-isha"

var accentVoices = map[string]string{
	"en-US": "en-US-davis",
	"en-GB": "en-UK-hazel",
	"en-AU": "en-AU-evelyn",
	"en-IN": "en-IN-isha",
	"en-SC": "en-UK-hazel",
	"es-ES": "es-ES-elvira",
	"es-MX": "es-MX-carlos",
	"fr-FR": "en-US-carter",
	"de-DE": "en-UK-ruby",
	"it-IT": "it-IT-greta",
	"pt-BR": "pt-BR-isadora",
	"hi-IN": "hi-IN-ayushi",
	"zh-CN": "zh-CN-jiao",
	"ja-JP": "ja-JP-denki",
	"ko-KR": "ko-KR-gyeong",
	"nl-NL": "nl-NL-dirk",
	"ro-RO": "en-US-charles",
	"tr-TR": "en-US-ken",
	"id-ID": "en-US-charles",
	"bn-BD": "bn-IN-ishani",
	"pl-PL": "pl-PL-jacek",
	"ta-IN": "ta-IN-iniya",
}

// VoiceFor maps an accent to a TTS voice id.
func VoiceFor(accent string) string {
	if v, ok := accentVoices[accent]; ok {
		return v
	}
	return DefaultVoice
}
