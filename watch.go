// Completion: 100% - File watching complete
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay is how long a file must stay quiet before a change fires
const debounceDelay = 300 * time.Millisecond

// FileWatcher calls onChange once per burst of writes to a watched file
type FileWatcher struct {
	w           *fsnotify.Watcher
	mu          sync.Mutex
	files       map[string]bool
	debounceMap map[string]*time.Timer
	onChange    func(string)
	done        chan struct{}
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &FileWatcher{
		w:           w,
		files:       make(map[string]bool),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		done:        make(chan struct{}),
	}, nil
}

// AddFile watches path. The containing directory is watched so that
// editors which replace the file on save are still seen.
func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := fw.w.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", absPath, err)
	}
	fw.mu.Lock()
	fw.files[absPath] = true
	fw.mu.Unlock()
	return nil
}

// Watch delivers changes until Close is called
func (fw *FileWatcher) Watch() {
	for {
		select {
		case event, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			path, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			fw.mu.Lock()
			watched := fw.files[path]
			fw.mu.Unlock()
			if watched {
				fw.debouncedCallback(path)
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			if verboseMode {
				fmt.Fprintf(os.Stderr, "DEBUG watch: %v\n", err)
			}
		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) debouncedCallback(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.debounceMap[path]; exists {
		timer.Stop()
	}

	fw.debounceMap[path] = time.AfterFunc(debounceDelay, func() {
		fw.onChange(path)
		fw.mu.Lock()
		delete(fw.debounceMap, path)
		fw.mu.Unlock()
	})
}

func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	for _, timer := range fw.debounceMap {
		timer.Stop()
	}
	fw.mu.Unlock()
	close(fw.done)
	return fw.w.Close()
}

// watchAndReplay replays file now and again every time it changes
func watchAndReplay(file string, run func(path string) bool) error {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Watching %s, press Ctrl+C to stop\n", absPath)
	fmt.Fprintf(os.Stderr, "[%s] Initial replay\n", time.Now().Format("15:04:05"))
	run(absPath)

	var mu sync.Mutex
	watcher, err := NewFileWatcher(func(path string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(os.Stderr, "\n[%s] File changed: %s\n", time.Now().Format("15:04:05"), filepath.Base(path))
		run(path)
	})
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.AddFile(absPath); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}

	watcher.Watch()
	return nil
}
