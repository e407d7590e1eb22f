package idempotency

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheAddContains(t *testing.T) {
	c := NewCache(10, time.Minute)

	if c.Contains("a") {
		t.Fatal("empty cache reports containment")
	}
	c.Add("a")
	if !c.Contains("a") {
		t.Fatal("added key not found")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewCache(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Add(fmt.Sprintf("k%d", i))
	}
	c.Add("k3")

	if c.Contains("k0") {
		t.Error("oldest entry survived eviction")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if !c.Contains(k) {
			t.Errorf("entry %s evicted unexpectedly", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10, 10*time.Millisecond)
	c.Add("a")
	time.Sleep(20 * time.Millisecond)

	if c.Contains("a") {
		t.Error("expired entry still reported")
	}
}

func TestCacheSweep(t *testing.T) {
	c := NewCache(10, 10*time.Millisecond)
	c.Add("a")
	c.Add("b")
	time.Sleep(20 * time.Millisecond)
	c.Add("c")

	c.Sweep()
	if c.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", c.Len())
	}
	if !c.Contains("c") {
		t.Error("unexpired entry swept")
	}
}

func TestCacheReAddRefreshesTTL(t *testing.T) {
	c := NewCache(10, 30*time.Millisecond)
	c.Add("a")
	time.Sleep(20 * time.Millisecond)
	c.Add("a")
	time.Sleep(20 * time.Millisecond)

	if !c.Contains("a") {
		t.Error("refreshed entry expired on original schedule")
	}
}
