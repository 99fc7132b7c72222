package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are directory names never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// FSNotify watches directory trees with fsnotify. Directories created after
// Subscribe are added as their create events arrive.
type FSNotify struct {
	logger *slog.Logger
}

// NewFSNotify creates an FSNotify watcher.
func NewFSNotify(logger *slog.Logger) *FSNotify {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSNotify{logger: logger}
}

// Subscribe implements Watcher.
func (f *FSNotify) Subscribe(ctx context.Context, paths []string) (<-chan Event, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := addTree(w, p, nil); err != nil {
			w.Close()
			return nil, err
		}
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						// Files may land in the directory before it is watched.
						var files []string
						if err := addTree(w, ev.Name, func(p string) { files = append(files, p) }); err != nil {
							f.logger.Warn("watch: cannot watch new directory", "path", ev.Name, "error", err)
						}
						for _, p := range files {
							select {
							case out <- Event{Path: p, Op: OpCreate}:
							case <-ctx.Done():
								return
							}
						}
						continue
					}
				}
				op, ok := translate(ev.Op)
				if !ok {
					continue
				}
				select {
				case out <- Event{Path: ev.Name, Op: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("watch: watcher error", "error", err)
			}
		}
	}()
	return out, nil
}

func translate(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	}
	return "", false
}

// addTree watches root and every directory below it, reporting each regular
// file found to file when it is non-nil.
func addTree(w *fsnotify.Watcher, root string, file func(string)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if file != nil && d.Type().IsRegular() {
				file(p)
			}
			return nil
		}
		if p != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
