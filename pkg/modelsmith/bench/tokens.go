package bench

import (
	"encoding/json"
	"strings"
)

// generationResponse covers the response shapes of both server kinds:
// DJL returns {"generated_text": ...}, TGI returns a one-element array
// of the same object.
type generationResponse struct {
	GeneratedText string `json:"generated_text"`
}

// countTokens estimates the generated token count of a response body.
// Whitespace words approximate tokens closely enough for comparing
// configurations of the same model. Unparseable bodies fall back to a
// bytes-per-token heuristic.
func countTokens(body []byte) int {
	var single generationResponse
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return len(strings.Fields(single.GeneratedText))
	}

	var many []generationResponse
	if err := json.Unmarshal(body, &many); err == nil {
		total := 0
		for _, r := range many {
			total += len(strings.Fields(r.GeneratedText))
		}
		if total > 0 {
			return total
		}
	}

	// Roughly four bytes per token for English text.
	return len(body) / 4
}
