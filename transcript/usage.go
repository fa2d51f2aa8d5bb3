package transcript

// TokenCounter estimates the token count of a piece of text. Package
// tokencount provides a tiktoken-backed implementation; the store works
// without one and then only tracks character counts.
type TokenCounter interface {
	Count(text string) int
}

// UsageTotals accumulates turn accounting across a drain or a backfill.
// It is not a Line: usage events mutate these counters and nothing else.
type UsageTotals struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	ReasoningTokens  int
	Steps            int

	// StreamedChars counts every delta character folded into the store.
	// StreamedTokens is the estimator's view of the same text, zero when
	// no TokenCounter is configured.
	StreamedChars  int
	StreamedTokens int
}

func (u *UsageTotals) addDelta(text string, counter TokenCounter) {
	u.StreamedChars += len(text)
	if counter != nil {
		u.StreamedTokens += counter.Count(text)
	}
}
