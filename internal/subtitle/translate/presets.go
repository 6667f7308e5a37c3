package translate

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// SeparatorToken delimits segments in a joined payload
	SeparatorToken = "---SUBTITLE_SEPARATOR---"
	// Separator is the token as placed between segments
	Separator = "\n" + SeparatorToken + "\n"
)

var srtBlockRe = regexp.MustCompile(`(?m)^\d+\s*\n\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)

// PromptKind names the instruction set chosen for a payload
type PromptKind string

const (
	PromptSRT       PromptKind = "srt"
	PromptSegmented PromptKind = "segmented"
	PromptGeneric   PromptKind = "generic"
)

// DetectPromptKind inspects the payload shape.
func DetectPromptKind(text string) PromptKind {
	switch {
	case srtBlockRe.MatchString(text):
		return PromptSRT
	case strings.Contains(text, SeparatorToken):
		return PromptSegmented
	}
	return PromptGeneric
}

const srtSystemPrompt = `You are a professional subtitle translator specializing in SRT format.

CRITICAL RULES - FOLLOW EXACTLY:
1. NEVER modify subtitle numbers (1, 2, 3, etc.)
2. NEVER modify timestamps (00:00:01,000 --> 00:00:03,000)
3. NEVER modify the SRT structure or formatting
4. ONLY translate the text content lines
5. Keep empty lines exactly as they are
6. Maintain the exact same number of subtitle entries
7. Output the complete SRT format with translated text

TRANSLATION QUALITY:
- Use natural, conversational language for subtitles
- Keep translations concise and readable
- Preserve emotional tone and context
- Use culturally appropriate expressions
- Maintain consistency throughout`

var segmentedSystemPrompt = fmt.Sprintf(`You are a professional subtitle translator.
CRITICAL RULES:
1. NEVER modify, remove, or change the "%[1]s" markers
2. ALWAYS preserve the exact separator format: "%[1]s"
3. Translate each subtitle segment individually
4. Maintain the exact same number of segments
5. Do NOT summarize or combine subtitles
6. Do NOT add explanations or commentary
7. Output ONLY the translated text with separators preserved

IMPORTANT: Each subtitle is separated by "%[1]s".
You must keep these separators EXACTLY as they are between translated segments.`, SeparatorToken)

const genericSystemPrompt = "You are a professional translator. Translate the following text accurately and naturally while preserving the original meaning and tone."

// BuildPrompt returns the system and user prompts for a payload.
func BuildPrompt(text, targetLang, sourceLang string) (system, prompt string) {
	target := langName(targetLang)
	hasSource := sourceLang != "" && sourceLang != "auto"

	switch DetectPromptKind(text) {
	case PromptSRT:
		head := fmt.Sprintf("Translate ALL subtitle text content to %s.", target)
		if hasSource {
			head = fmt.Sprintf("Translate the subtitle text content from %s to %s.", langName(sourceLang), target)
		}
		return srtSystemPrompt, head + "\n\n" +
			"Keep ALL numbers and timestamps EXACTLY as they are.\n" +
			"Only translate the text lines.\n" +
			"Maintain the exact SRT format.\n\n" + text

	case PromptSegmented:
		source := "the detected language"
		if hasSource {
			source = langName(sourceLang)
		}
		return segmentedSystemPrompt, fmt.Sprintf("Translate the following text from %s to %s.\n", source, target) +
			fmt.Sprintf("IMPORTANT: Each subtitle is separated by %q.\n", SeparatorToken) +
			"You must translate each subtitle individually and keep the exact same separators.\n" +
			"Do not summarize or combine subtitles. Translate each segment separately and maintain the exact structure.\n" +
			"Only return the translated text with the same separators:\n\n" + text
	}

	if hasSource {
		return genericSystemPrompt, fmt.Sprintf("Translate the following text from %s to %s. Only return the translated text without any explanations:\n\n%s", langName(sourceLang), target, text)
	}
	return genericSystemPrompt, fmt.Sprintf("Translate the following text to %s. Only return the translated text without any explanations:\n\n%s", target, text)
}

// Language is a supported target language
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Languages lists the languages offered to clients.
func Languages() []Language {
	return []Language{
		{Code: "ko", Name: "한국어"},
		{Code: "en", Name: "English"},
		{Code: "ja", Name: "日本語"},
		{Code: "zh", Name: "中文"},
		{Code: "es", Name: "Español"},
		{Code: "fr", Name: "Français"},
		{Code: "de", Name: "Deutsch"},
		{Code: "it", Name: "Italiano"},
		{Code: "pt", Name: "Português"},
		{Code: "ru", Name: "Русский"},
	}
}

func langName(code string) string {
	names := map[string]string{
		"ko":   "Korean",
		"en":   "English",
		"ja":   "Japanese",
		"zh":   "Chinese",
		"es":   "Spanish",
		"fr":   "French",
		"de":   "German",
		"pt":   "Portuguese",
		"it":   "Italian",
		"ru":   "Russian",
		"ar":   "Arabic",
		"hi":   "Hindi",
		"th":   "Thai",
		"vi":   "Vietnamese",
		"id":   "Indonesian",
		"auto": "auto-detected language",
	}
	if name, ok := names[code]; ok {
		return name
	}
	return code
}
