package cache

import (
	"strings"
	"sync"
	"testing"
)

type entry struct {
	Key      string
	Category string
	Body     string
}

func TestMemoryCache_Basic(t *testing.T) {
	c := NewMemoryCache[string, entry]()

	e1 := entry{Key: "a", Category: "static", Body: "hello"}
	c.Set("a", e1)

	// Get
	if got, ok := c.Get("a"); !ok || got != e1 {
		t.Errorf("Get(a) = %v, %v; want %v, true", got, ok, e1)
	}

	// Len
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	// Del
	c.Del("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) found item after Del")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestMemoryCache_Indexing(t *testing.T) {
	c := NewMemoryCache[string, entry]()
	c.AddIndex("category", func(e entry) any { return e.Category })

	c.Set("a", entry{Key: "a", Category: "static"})
	c.Set("b", entry{Key: "b", Category: "static"})
	c.Set("c", entry{Key: "c", Category: "dynamic"})

	got, err := c.Find("category", "static")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Find(category, static) returned %d items, want 2", len(got))
	}

	// Updating an item must move it between index buckets
	c.Set("a", entry{Key: "a", Category: "dynamic"})
	got, _ = c.Find("category", "static")
	if len(got) != 1 {
		t.Errorf("Find(category, static) after update returned %d items, want 1", len(got))
	}

	counts, err := c.CountBy("category")
	if err != nil {
		t.Fatalf("CountBy returned error: %v", err)
	}
	if counts["dynamic"] != 2 || counts["static"] != 1 {
		t.Errorf("CountBy(category) = %v, want dynamic=2 static=1", counts)
	}
}

func TestMemoryCache_IndexNotFound(t *testing.T) {
	c := NewMemoryCache[string, entry]()

	if _, err := c.Find("missing", "x"); err != ErrIndexNotFound {
		t.Errorf("Find on missing index returned %v, want ErrIndexNotFound", err)
	}
	if _, err := c.CountBy("missing"); err != ErrIndexNotFound {
		t.Errorf("CountBy on missing index returned %v, want ErrIndexNotFound", err)
	}
}

func TestMemoryCache_FilterAndDeleteFunc(t *testing.T) {
	c := NewMemoryCache[string, entry]()
	c.AddIndex("category", func(e entry) any { return e.Category })

	c.Set("a", entry{Key: "a", Category: "static", Body: "opening hours"})
	c.Set("b", entry{Key: "b", Category: "static", Body: "pricing table"})
	c.Set("c", entry{Key: "c", Category: "dynamic", Body: "availability"})

	matches := c.Filter(func(e entry) bool { return strings.Contains(e.Body, "pricing") })
	if len(matches) != 1 {
		t.Errorf("Filter returned %d items, want 1", len(matches))
	}

	removed := c.DeleteFunc(func(_ string, e entry) bool { return e.Category == "static" })
	if removed != 2 {
		t.Errorf("DeleteFunc removed %d items, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after DeleteFunc, want 1", c.Len())
	}

	// Index must be consistent after bulk deletion
	got, _ := c.Find("category", "static")
	if len(got) != 0 {
		t.Errorf("Find(category, static) returned %d items after DeleteFunc, want 0", len(got))
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache[string, entry]()
	c.AddIndex("category", func(e entry) any { return e.Category })

	c.Set("a", entry{Key: "a", Category: "static"})
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}

	// Index definitions survive Clear
	c.Set("b", entry{Key: "b", Category: "static"})
	got, err := c.Find("category", "static")
	if err != nil || len(got) != 1 {
		t.Errorf("Find after Clear = %v, %v; want 1 item, nil error", got, err)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(n*100+j, j)
				c.Get(n*100 + j)
				if j%10 == 0 {
					c.Del(n*100 + j)
				}
			}
		}(i)
	}
	wg.Wait()

	want := 50 * 100 * 9 / 10
	if c.Len() != want {
		t.Errorf("Len() = %d after concurrent ops, want %d", c.Len(), want)
	}
}
