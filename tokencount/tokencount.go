// Package tokencount estimates token counts for streamed transcript text.
package tokencount

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a tiktoken encoding. It implements transcript.TokenCounter.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New creates a counter for the given model, falling back to cl100k_base
// when the model is unknown.
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Counter{enc: enc}, nil
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
