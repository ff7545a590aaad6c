package colorcue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/colorcue/colorcue/pkg/extract"
)

func TestLoadVocabularyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.txt")
	content := "# ui palette\nred\nBlue\n\n  green  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := LoadVocabularyFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v.Len() != 3 || !v.Contains("blue") || !v.Contains("green") {
		t.Fatalf("vocabulary = %v", v.Labels())
	}
}

func TestLoadVocabularyFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.txt")
	if err := os.WriteFile(path, []byte("# nothing here\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadVocabularyFile(path); err == nil {
		t.Fatalf("expected error for empty vocabulary")
	}
}

func TestVocabularyWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "colors.txt")
	if err := os.WriteFile(path, []byte("red\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	updates := make(chan extract.Vocabulary, 4)
	w, err := NewVocabularyWatcher(path, func(v extract.Vocabulary) error {
		updates <- v
		return nil
	})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("red\nteal\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case v := <-updates:
			if v.Contains("teal") {
				return
			}
		case <-deadline:
			t.Fatalf("watcher never delivered updated vocabulary")
		}
	}
}

func TestVocabularyWatcherKeepsOldSetOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "colors.txt")
	if err := os.WriteFile(path, []byte("red\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	applied := make(chan extract.Vocabulary, 4)
	w, err := NewVocabularyWatcher(path, func(v extract.Vocabulary) error {
		applied <- v
		return nil
	})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	// A truncate to nothing parses to an empty set and must be ignored.
	if err := os.WriteFile(path, []byte("#\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case v := <-applied:
		t.Fatalf("empty vocabulary should not be applied, got %v", v.Labels())
	case <-time.After(300 * time.Millisecond):
	}
}
