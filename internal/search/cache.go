package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zimi-go/zimi/internal/cache"
)

// suggestionCacheCap/TTL and resultCacheCap/TTL match spec.md §4.3's
// and §4.4's capacities exactly: result cache 100 entries/5 minutes,
// suggestion cache 500 entries/15 minutes.
const (
	suggestionCacheCap = 500
	suggestionCacheTTL = 15 * time.Minute
	resultCacheCap     = 100
	resultCacheTTL     = 5 * time.Minute
)

// suggestionKey identifies one (archive, prefix) autocomplete lookup,
// per spec.md §4.4 ("Per-archive LRU of (prefix -> results)").
type suggestionKey struct {
	archiveID string
	prefix    string
}

// resultKey is the result cache's lookup key: hash of (normalized
// query, scope, limit, fast), per spec.md §4.3.
type resultKey string

func newResultKey(q Query) resultKey {
	norm := strings.Join(tokenize(q.Text), " ")
	scope := strings.Join(q.Scope, ",")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%t", norm, scope, q.Limit, q.Fast)))
	return resultKey(hex.EncodeToString(sum[:]))
}

// Caches bundles the suggestion cache (D) and result cache (E), both
// generic internal/cache.LRU instantiations per spec.md §4.4/§4.3.
type Caches struct {
	suggestions *cache.LRU[suggestionKey, []Suggestion]
	results     *cache.LRU[resultKey, *Result]
}

// NewCaches creates both caches at their spec-mandated capacities and
// TTLs.
func NewCaches() *Caches {
	return &Caches{
		suggestions: cache.New[suggestionKey, []Suggestion](suggestionCacheCap, suggestionCacheTTL),
		results:     cache.New[resultKey, *Result](resultCacheCap, resultCacheTTL),
	}
}

// Close stops both caches' background sweep goroutines.
func (c *Caches) Close() {
	c.suggestions.Close()
	c.results.Close()
}

// Invalidate clears both caches, called on any archive registry
// change (add/remove/update), per spec.md §4.3/§4.4.
func (c *Caches) Invalidate() {
	c.suggestions.Clear()
	c.results.Clear()
}
