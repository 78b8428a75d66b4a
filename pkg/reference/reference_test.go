package reference

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 5000; i++ {
		ref := g.Next("pay")
		_, dup := seen[ref]
		assert.False(t, dup, "duplicate reference %s at %d", ref, i)
		seen[ref] = struct{}{}
	}
}

func TestNextFormat(t *testing.T) {
	g := NewGenerator()
	ref := g.Next("pay")
	parts := strings.Split(ref, "_")
	assert.GreaterOrEqual(t, len(parts), 3)
	assert.Equal(t, "pay", parts[0])
}

func TestEmptyPrefixDefaults(t *testing.T) {
	g := NewGenerator()
	assert.True(t, strings.HasPrefix(g.Next(""), "pay_"))
}

func TestPrefixSanitized(t *testing.T) {
	g := NewGenerator()
	assert.True(t, strings.HasPrefix(g.Next(" Manual Entry "), "manual-entry_"))
}

func TestConcurrentGeneration(t *testing.T) {
	g := NewGenerator()
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				ref := g.Next("pay")
				mu.Lock()
				_, dup := seen[ref]
				assert.False(t, dup)
				seen[ref] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1600)
}

func TestWindowEviction(t *testing.T) {
	g := NewGenerator()
	for i := 0; i < recentWindow+50; i++ {
		g.Next("pay")
	}
	assert.LessOrEqual(t, len(g.recent), recentWindow)
	assert.LessOrEqual(t, len(g.order), recentWindow)
}
