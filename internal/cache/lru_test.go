package cache

import (
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	c := New[string, int](3, time.Minute)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v, want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) should miss")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, time.Minute)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // touch a, making b the LRU entry
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should still be present")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("c should be present")
	}
}

func TestExpiresAfterTTL(t *testing.T) {
	c := New[string, int](10, 20*time.Millisecond)
	defer c.Close()

	c.Put("a", 1)
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired")
	}
}

func TestClear(t *testing.T) {
	c := New[string, int](10, time.Minute)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", c.Len())
	}
}
