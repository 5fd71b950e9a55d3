package metadata

import (
	"sync"
	"testing"

	"github.com/gwlsn/transcast/internal/media"
)

func TestCacheInsertIsMonotonic(t *testing.T) {
	c := NewCache()
	first := &media.Metadata{CameraModel: "first"}
	second := &media.Metadata{CameraModel: "second"}

	if got := c.Insert("/a.mp4", first); got != first {
		t.Fatal("first insert must win")
	}
	if got := c.Insert("/a.mp4", second); got != first {
		t.Fatal("second insert for the same path must return the existing entry")
	}
	if got := c.Get("/a.mp4"); got != first {
		t.Fatal("Get must return the first-inserted entry")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestCacheGetMissing(t *testing.T) {
	c := NewCache()
	if c.Get("/missing.mp4") != nil {
		t.Fatal("missing path must return nil")
	}
}

func TestCacheConcurrentInsertsOneWinner(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	results := make([]*media.Metadata, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Insert("/x.mp4", &media.Metadata{Width: i})
		}(i)
	}
	wg.Wait()

	winner := c.Get("/x.mp4")
	for i, r := range results {
		if r != winner {
			t.Fatalf("insert %d observed a different entry than the cached one", i)
		}
	}
}
