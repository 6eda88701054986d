package utils

// CountTokens estimates the number of tokens in text at roughly four
// characters per token. Any non-empty text counts as at least one token.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// FitsContext reports whether a prompt plus the requested completion budget
// fits a model's context window. contextTokens <= 0 means unknown and
// always fits. The estimated prompt size is returned either way.
func FitsContext(prompt string, maxOutput, contextTokens int) (bool, int) {
	n := CountTokens(prompt)
	if contextTokens <= 0 {
		return true, n
	}
	return n+maxOutput <= contextTokens, n
}
