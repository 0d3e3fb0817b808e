// Package testutil holds deterministic stand-ins shared by radiocap tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokens generates "<prefix>-1", "<prefix>-2", ...
//
// The same scenario with the same generator produces byte-identical traces,
// which golden comparison depends on.
type SequentialTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokens creates a generator. An empty prefix becomes "token".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "token"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialTokens) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// FixedTokens hands out a predetermined list and panics when it runs out.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	index  int
}

// NewFixedTokens creates a generator returning tokens in order.
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next token.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index >= len(g.tokens) {
		panic(fmt.Sprintf("testutil: FixedTokens exhausted after %d tokens", len(g.tokens)))
	}
	t := g.tokens[g.index]
	g.index++
	return t
}
