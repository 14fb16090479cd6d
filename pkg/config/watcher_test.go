package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_TriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "registry.yaml", sampleRegistryYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{path}, 20*time.Millisecond, nil, func() {
			changed <- struct{}{}
		})
	}()

	// Keep writing until the watcher is established and reports the change.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Expected clean shutdown, got: %v", err)
			}
			return
		case <-ticker.C:
			if err := os.WriteFile(path, []byte(sampleRegistryYAML+"\n"), 0o644); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}
		case <-deadline:
			t.Fatal("Expected change notification, got none")
		}
	}
}

func TestWatch_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "registry.yaml", sampleRegistryYAML)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{path}, 10*time.Millisecond, nil, func() {
			changed <- struct{}{}
		})
	}()

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	select {
	case <-changed:
		t.Fatal("Expected no notification for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Expected clean shutdown, got: %v", err)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Watch(ctx, []string{t.TempDir()}, 0, nil, func() {}); err != nil {
		t.Fatalf("Expected nil error on cancelled context, got: %v", err)
	}
}
