package capability

// DefaultBytesPerToken approximates English text for GPT-style tokenizers.
const DefaultBytesPerToken = 4

// EstimateTokens returns ceil(len(text)/bytesPerToken). Values below 1 use
// DefaultBytesPerToken.
func EstimateTokens(bytesPerToken int) TokenCounter {
	if bytesPerToken < 1 {
		bytesPerToken = DefaultBytesPerToken
	}
	return func(text string) int {
		n := len(text)
		if n == 0 {
			return 0
		}
		return (n + bytesPerToken - 1) / bytesPerToken
	}
}
