package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchTemplates_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  role: First\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Catalog, 4)
	if err := WatchTemplates(ctx, path, func(c *Catalog) { reloaded <- c }); err != nil {
		t.Fatalf("WatchTemplates() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("agent:\n  role: Second\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if c.Persona().Role == "Second" {
				return
			}
		case <-deadline:
			t.Fatal("catalog was not reloaded after write")
		}
	}
}

func TestWatchTemplates_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "prompts.yaml")
	if err := WatchTemplates(context.Background(), path, func(*Catalog) {}); err == nil {
		t.Error("WatchTemplates() on a missing directory should fail")
	}
}
