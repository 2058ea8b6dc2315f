package stream

import (
	"strings"
	"sync"
)

// TokenBuffer retains the most recent tokens up to a fixed capacity with
// strict FIFO eviction: each Add beyond capacity evicts exactly the oldest
// token.
type TokenBuffer struct {
	mu     sync.Mutex
	tokens []string
	cap    int
}

// NewTokenBuffer returns a buffer retaining at most capacity tokens.
func NewTokenBuffer(capacity int) *TokenBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBuffer{cap: capacity}
}

// Add appends a token, evicting the oldest when over capacity.
func (b *TokenBuffer) Add(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = append(b.tokens, token)
	if len(b.tokens) > b.cap {
		b.tokens = b.tokens[1:]
	}
}

// Text concatenates retained tokens in arrival order with no separator.
func (b *TokenBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.tokens, "")
}

// LastN returns the last n retained tokens (fewer if the buffer is
// shorter), earliest first.
func (b *TokenBuffer) LastN(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.tokens) {
		n = len(b.tokens)
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	copy(out, b.tokens[len(b.tokens)-n:])
	return out
}

// Len returns the number of retained tokens.
func (b *TokenBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens)
}
