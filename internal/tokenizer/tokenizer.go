// Package tokenizer counts and truncates text in model tokens using a single
// fixed BPE encoding, so every budget computation in a process agrees.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the encoding used by current OpenAI chat models.
const DefaultEncoding = "o200k_base"

// Encoding is the encode/decode contract the adapter relies on.
// *tiktoken.Tiktoken satisfies it.
type Encoding interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Tokenizer wraps one loaded encoding.
type Tokenizer struct {
	name string
	enc  Encoding
}

// New loads the named tiktoken encoding. The BPE ranks are fetched on first
// use and cached under TIKTOKEN_CACHE_DIR when set.
func New(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &Tokenizer{name: encoding, enc: enc}, nil
}

// NewWithEncoding wraps an already loaded encoding.
func NewWithEncoding(name string, enc Encoding) *Tokenizer {
	return &Tokenizer{name: name, enc: enc}
}

// Name reports the encoding name.
func (t *Tokenizer) Name() string {
	return t.name
}

// Encode returns the token ids for text. Special-token text is encoded as
// ordinary text.
func (t *Tokenizer) Encode(text string) []int {
	if text == "" {
		return nil
	}
	return t.enc.Encode(text, nil, nil)
}

// Decode maps token ids back to text.
func (t *Tokenizer) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}
	return t.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.Encode(text))
}

// Truncate returns the longest token prefix of text no longer than limit tokens.
func (t *Tokenizer) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	tokens := t.Encode(text)
	if len(tokens) <= limit {
		return text
	}
	return t.Decode(tokens[:limit])
}
