// Package reference issues the payment references that key a gateway
// transaction back to an internal payment record. A reference doubles as the
// idempotency key sent to the gateway, so it must never be reissued.
package reference

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	recentWindow = 1000 // most-recently-issued references checked on generation
	maxAttempts  = 5
)

// Generator produces references of the form {prefix}_{unixms}_{random} with an
// in-process recency window guarding against duplicates. Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	recent map[string]struct{}
	order  []string
}

func NewGenerator() *Generator {
	return &Generator{recent: make(map[string]struct{}, recentWindow)}
}

// Next returns a fresh reference. On collision inside the recency window the
// timestamp component is perturbed and a new candidate drawn; if the attempt
// cap is exhausted a UUID-based fallback guarantees termination.
func (g *Generator) Next(prefix string) string {
	prefix = sanitizePrefix(prefix)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s_%d_%s", prefix, now+int64(attempt), randomHex(3))
		if _, seen := g.recent[candidate]; !seen {
			g.remember(candidate)
			return candidate
		}
	}
	fallback := fmt.Sprintf("%s_%s", prefix, uuid.New().String())
	g.remember(fallback)
	return fallback
}

func (g *Generator) remember(ref string) {
	g.recent[ref] = struct{}{}
	g.order = append(g.order, ref)
	if len(g.order) > recentWindow {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.recent, oldest)
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is unrecoverable; fall back to uuid entropy
		return strings.ReplaceAll(uuid.New().String(), "-", "")[:n*2]
	}
	return hex.EncodeToString(b)
}

func sanitizePrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.ToLower(prefix))
	if prefix == "" {
		return "pay"
	}
	return strings.ReplaceAll(prefix, " ", "-")
}
