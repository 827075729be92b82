package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"form-ai-queue/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter estimates token counts with the cl100k/o200k encodings.
// It is only an estimate for non-OpenAI models; when an encoding cannot be
// loaded it falls back to one token per four bytes.
type TiktokenCounter struct {
	mu   sync.Mutex
	encs map[string]*tiktoken.Tiktoken
	bad  map[string]bool
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encs: map[string]*tiktoken.Tiktoken{}, bad: map[string]bool{}}
}

func (c *TiktokenCounter) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	name := encodingFor(model)
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encs[name]; ok {
		return enc
	}
	if c.bad[name] {
		return nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		c.bad[name] = true
		return nil
	}
	c.encs[name] = enc
	return enc
}

func encodingFor(model string) string {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-4o") || strings.HasPrefix(m, "gpt-4.1") || strings.HasPrefix(m, "gpt-5") ||
		strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") {
		return "o200k_base"
	}
	return "cl100k_base"
}

func approxTokens(text string) int {
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}
