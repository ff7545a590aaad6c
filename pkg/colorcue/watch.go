package colorcue

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/colorcue/colorcue/pkg/extract"
)

// LoadVocabularyFile reads a labels file: one label per line, blank lines and
// lines starting with # are skipped.
func LoadVocabularyFile(path string) (extract.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return extract.Vocabulary{}, fmt.Errorf("open vocabulary file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return extract.Vocabulary{}, fmt.Errorf("read vocabulary file: %w", err)
	}
	return extract.NewVocabulary(labels...)
}

// VocabularyWatcher reloads the labels file on change and hands the parsed
// set to apply. The parent directory is watched because editors replace
// files instead of writing in place.
type VocabularyWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	apply   func(extract.Vocabulary) error
	done    chan struct{}
}

func NewVocabularyWatcher(path string, apply func(extract.Vocabulary) error) (*VocabularyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("vocabulary watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w := &VocabularyWatcher{
		path:    path,
		watcher: watcher,
		apply:   apply,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *VocabularyWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("vocabulary_watch_error", "err", err)
		}
	}
}

func (w *VocabularyWatcher) reload() {
	v, err := LoadVocabularyFile(w.path)
	if err != nil {
		// Partial writes happen; keep the previous set.
		slog.Warn("vocabulary_reload_failed", "file", w.path, "err", err)
		return
	}
	if err := w.apply(v); err != nil {
		slog.Warn("vocabulary_apply_failed", "file", w.path, "err", err)
	}
}

func (w *VocabularyWatcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.watcher.Close()
}
