package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"xiapu/imageguard/internal/dom"
)

// Inserter is the part of the document the inbox writes to.
type Inserter interface {
	Insert(selector, fragment string) ([]*dom.Element, error)
}

// Inbox inserts HTML fragments dropped into a directory into the page.
// Each file name is inserted once; empty files wait for their content.
type Inbox struct {
	fs       afero.Fs
	dir      string
	selector string
	doc      Inserter

	mu   sync.Mutex
	seen map[string]bool
}

func NewInbox(fs afero.Fs, dir, selector string, doc Inserter) *Inbox {
	return &Inbox{
		fs:       fs,
		dir:      dir,
		selector: selector,
		doc:      doc,
		seen:     make(map[string]bool),
	}
}

// Scan inserts every fragment already in the directory, in name order.
func (i *Inbox) Scan() (int, error) {
	infos, err := afero.ReadDir(i.fs, i.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox %s: %w", i.dir, err)
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name() < infos[b].Name() })

	inserted := 0
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ok, err := i.ingest(filepath.Join(i.dir, info.Name()))
		if err != nil {
			log.Errorf("❌ Failed to insert fragment %s: %v", info.Name(), err)
			continue
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// Run scans the directory once and then inserts fragments as they appear
// until ctx is done.
func (i *Inbox) Run(ctx context.Context) error {
	if err := i.fs.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", i.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(i.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", i.dir, err)
	}

	if _, err := i.Scan(); err != nil {
		return err
	}
	log.Infof("📥 Watching %s for page fragments", i.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, err := i.ingest(event.Name); err != nil {
				log.Errorf("❌ Failed to insert fragment %s: %v", filepath.Base(event.Name), err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("⚠️ Inbox watcher error: %v", err)
		}
	}
}

func (i *Inbox) ingest(path string) (bool, error) {
	name := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(name), ".html") {
		return false, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.seen[name] {
		return false, nil
	}

	content, err := afero.ReadFile(i.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return false, nil
	}

	added, err := i.doc.Insert(i.selector, string(content))
	if err != nil {
		return false, err
	}
	i.seen[name] = true

	log.Infof("📥 Inserted fragment %s (%d elements)", name, len(added))
	return true, nil
}
