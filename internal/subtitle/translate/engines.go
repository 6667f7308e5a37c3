package translate

const (
	EngineDeepL  = "deepl"
	EngineOpenAI = "openai"
	EngineGroq   = "groq"
	EngineClaude = "claude"
	EngineGemini = "gemini"

	EngineOllamaGemma2          = "ollama-gemma2"
	EngineOllamaSapie           = "ollama-gemma2-sapie"
	EngineOllamaExaone          = "ollama-exaone3.5"
	EngineOllamaHyperClovax     = "ollama-hyperclovax"
	EngineOllamaHyperClovax1_5B = "ollama-hyperclovax-1.5b"
	EngineOllamaKanana          = "ollama-kanana-1.5"

	DefaultEngine = EngineOllamaSapie
)

// ollamaEngines is the local model roster in preference order.
var ollamaEngines = []string{
	EngineOllamaSapie,
	EngineOllamaKanana,
	EngineOllamaExaone,
	EngineOllamaGemma2,
	EngineOllamaHyperClovax,
	EngineOllamaHyperClovax1_5B,
}

var ollamaModels = map[string]string{
	EngineOllamaGemma2:          "gemma2:9b",
	EngineOllamaSapie:           "sapie:latest",
	EngineOllamaExaone:          "exaone3.5:latest",
	EngineOllamaHyperClovax:     "hyperclovax:latest",
	EngineOllamaHyperClovax1_5B: "hyperclovax-1.5b:latest",
	EngineOllamaKanana:          "kanana-1.5:latest",
}

var engineNames = map[string]string{
	EngineGemini:                "Google Gemini",
	EngineGroq:                  "Groq Llama",
	EngineOpenAI:                "OpenAI GPT",
	EngineClaude:                "Anthropic Claude",
	EngineDeepL:                 "DeepL",
	EngineOllamaKanana:          "Ollama Kanana 1.5-8B (Kakao Corp. Korean)",
	EngineOllamaHyperClovax:     "Ollama HyperCLOVAX 3B (Naver Korean)",
	EngineOllamaHyperClovax1_5B: "Ollama HyperCLOVAX 1.5B (Naver Korean Lite)",
	EngineOllamaGemma2:          "Ollama Gemma2",
	EngineOllamaSapie:           "Ollama Gemma2 Sapie (Korean)",
	EngineOllamaExaone:          "Ollama Exaone3.5 (Korean)",
}

// hostedFallback is shared by every hosted engine: local deployments first.
var hostedFallback = []string{
	EngineOllamaKanana,
	EngineOllamaSapie,
	EngineOllamaExaone,
	EngineOllamaGemma2,
	EngineOllamaHyperClovax,
	EngineOllamaHyperClovax1_5B,
}

var fallbackOrder = map[string][]string{
	EngineOllamaSapie:           {EngineOllamaKanana, EngineOllamaExaone, EngineOllamaGemma2, EngineOllamaHyperClovax, EngineOllamaHyperClovax1_5B},
	EngineOllamaKanana:          {EngineOllamaSapie, EngineOllamaExaone, EngineOllamaGemma2, EngineOllamaHyperClovax, EngineOllamaHyperClovax1_5B},
	EngineOllamaExaone:          {EngineOllamaKanana, EngineOllamaSapie, EngineOllamaGemma2, EngineOllamaHyperClovax, EngineOllamaHyperClovax1_5B},
	EngineOllamaGemma2:          {EngineOllamaKanana, EngineOllamaSapie, EngineOllamaExaone, EngineOllamaHyperClovax, EngineOllamaHyperClovax1_5B},
	EngineOllamaHyperClovax:     {EngineOllamaKanana, EngineOllamaSapie, EngineOllamaExaone, EngineOllamaGemma2, EngineOllamaHyperClovax1_5B},
	EngineOllamaHyperClovax1_5B: {EngineOllamaKanana, EngineOllamaSapie, EngineOllamaExaone, EngineOllamaGemma2, EngineOllamaHyperClovax},
	EngineGemini:                hostedFallback,
	EngineGroq:                  hostedFallback,
	EngineOpenAI:                hostedFallback,
	EngineDeepL:                 hostedFallback,
	EngineClaude:                hostedFallback,
}

// FallbackEngines returns the fixed fallback order for primary. The result never
// contains primary and is safe to modify.
func FallbackEngines(primary string) []string {
	list, ok := fallbackOrder[primary]
	if !ok {
		list = ollamaEngines
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e != primary {
			out = append(out, e)
		}
	}
	return out
}

// EngineName returns the display name for an engine id.
func EngineName(id string) string {
	if name, ok := engineNames[id]; ok {
		return name
	}
	return id
}

// IsOllamaEngine reports whether id runs on the local Ollama deployment.
func IsOllamaEngine(id string) bool {
	_, ok := ollamaModels[id]
	return ok
}
