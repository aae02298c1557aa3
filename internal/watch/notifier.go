// Package watch turns filesystem notifications under a directory into
// debounced, deduplicated change batches.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	log "github.com/chmouel/treesync/internal/log"
	"github.com/chmouel/treesync/internal/models"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// DefaultDebounce is the quiet window after which pending events are flushed.
const DefaultDebounce = 500 * time.Millisecond

var (
	ErrPathNotFound    = errors.New("watch path does not exist")
	ErrNotDirectory    = errors.New("watch path is not a directory")
	ErrPathNotReadable = errors.New("watch path is not readable")
	ErrAlreadyRunning  = errors.New("notifier already running")
)

// State is the notifier lifecycle state.
type State int

const (
	Idle State = iota
	Monitoring
)

func (s State) String() string {
	if s == Monitoring {
		return "monitoring"
	}
	return "idle"
}

// Options configures a Notifier.
type Options struct {
	Root     string
	Debounce time.Duration
	Filter   Filter
	Logf     func(string, ...any)
}

// Notifier watches a directory tree and emits coalesced batches of changes.
// Batches and Errors are never closed; a stopped notifier can be started again.
type Notifier struct {
	root     string
	debounce time.Duration
	filter   Filter
	logf     func(string, ...any)

	batches chan models.ChangeBatch
	errs    chan error

	mu   sync.Mutex
	sess *session
}

// session is one Start..Stop cycle.
type session struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	// emitMu serialises delivery with Stop so nothing is sent once Stop returns.
	emitMu sync.Mutex

	mu      sync.Mutex
	pending []models.ChangeEvent
	timer   *time.Timer
	dirs    map[string]struct{}
}

// New creates an idle notifier.
func New(opts Options) *Notifier {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	filter := opts.Filter
	if filter.isZero() {
		filter = DefaultFilter()
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Notifier{
		root:     filepath.Clean(opts.Root),
		debounce: debounce,
		filter:   filter,
		logf:     logf,
		batches:  make(chan models.ChangeBatch, 16),
		errs:     make(chan error, 8),
	}
}

// Root returns the watched directory.
func (n *Notifier) Root() string {
	return n.root
}

// Batches delivers coalesced change batches.
func (n *Notifier) Batches() <-chan models.ChangeBatch {
	return n.batches
}

// Errors delivers watcher errors. Errors are dropped when nobody reads them.
func (n *Notifier) Errors() <-chan error {
	return n.errs
}

// State reports whether the notifier is monitoring.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sess == nil {
		return Idle
	}
	return Monitoring
}

// Start validates the root and begins monitoring. Cancelling ctx stops the notifier.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sess != nil {
		return ErrAlreadyRunning
	}
	if err := checkRoot(n.root); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	sess := n.newSession(watcher)
	n.addTree(sess, n.root)
	n.sess = sess

	sess.wg.Add(1)
	go n.run(sess)
	go func() {
		select {
		case <-ctx.Done():
			n.stopSession(sess)
		case <-sess.done:
		}
	}()

	n.logf("watch: monitoring %s (debounce %s)", n.root, n.debounce)
	return nil
}

// Stop cancels the debounce timer and drops unflushed events. No batch is
// delivered after Stop returns.
func (n *Notifier) Stop() {
	n.mu.Lock()
	sess := n.sess
	n.mu.Unlock()
	n.stopSession(sess)
}

func (n *Notifier) stopSession(sess *session) {
	if sess == nil {
		return
	}
	n.mu.Lock()
	if n.sess != sess {
		n.mu.Unlock()
		return
	}
	n.sess = nil
	n.mu.Unlock()

	close(sess.done)

	sess.mu.Lock()
	if sess.timer != nil {
		sess.timer.Stop()
	}
	dropped := len(sess.pending)
	sess.pending = nil
	sess.mu.Unlock()

	// wait out a flush that already passed its done check
	sess.emitMu.Lock()
	sess.emitMu.Unlock()

	if sess.watcher != nil {
		_ = sess.watcher.Close()
	}
	sess.wg.Wait()
	n.logf("watch: stopped %s, dropped %d pending events", n.root, dropped)
}

func (n *Notifier) newSession(watcher *fsnotify.Watcher) *session {
	return &session{
		watcher: watcher,
		done:    make(chan struct{}),
		dirs:    make(map[string]struct{}),
	}
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrPathNotFound, root)
	case err != nil:
		return fmt.Errorf("%w: %s: %w", ErrPathNotReadable, root, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	f, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPathNotReadable, root, err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrPathNotReadable, root, err)
	}
	return nil
}

func (n *Notifier) run(sess *session) {
	defer sess.wg.Done()
	for {
		select {
		case <-sess.done:
			return
		case event, ok := <-sess.watcher.Events:
			if !ok {
				return
			}
			n.handle(sess, event)
		case err, ok := <-sess.watcher.Errors:
			if !ok {
				return
			}
			n.logf("watch: watcher error: %v", err)
			select {
			case n.errs <- err:
			default:
			}
		}
	}
}

// handle translates, filters and queues one raw event.
func (n *Notifier) handle(sess *session, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	flags := translate(event)

	rel, err := filepath.Rel(n.root, event.Name)
	if err != nil {
		return
	}
	if !n.filter.Accept(rel, flags) {
		return
	}
	if flags.Has(models.FlagCreated | models.FlagIsDir) {
		n.addTree(sess, event.Name)
	}

	n.enqueue(sess, models.ChangeEvent{Path: event.Name, Timestamp: time.Now(), Flags: flags})
}

func translate(event fsnotify.Event) models.ChangeFlags {
	var flags models.ChangeFlags
	if event.Has(fsnotify.Create) {
		flags |= models.FlagCreated
	}
	if event.Has(fsnotify.Write) {
		flags |= models.FlagModified
	}
	if event.Has(fsnotify.Remove) {
		flags |= models.FlagRemoved
	}
	if event.Has(fsnotify.Rename) {
		flags |= models.FlagRenamed
	}
	if info, err := os.Lstat(event.Name); err == nil {
		if info.IsDir() {
			flags |= models.FlagIsDir
		} else {
			flags |= models.FlagIsFile
		}
	}
	return flags
}

// enqueue appends ev to the pending batch and re-arms the debounce timer.
func (n *Notifier) enqueue(sess *session, ev models.ChangeEvent) {
	select {
	case <-sess.done:
		return
	default:
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.pending = append(sess.pending, ev)
	if sess.timer == nil {
		sess.timer = time.AfterFunc(n.debounce, func() { n.flush(sess) })
		return
	}
	sess.timer.Reset(n.debounce)
}

func (n *Notifier) flush(sess *session) {
	sess.emitMu.Lock()
	defer sess.emitMu.Unlock()

	select {
	case <-sess.done:
		return
	default:
	}

	sess.mu.Lock()
	events := sess.pending
	sess.pending = nil
	sess.mu.Unlock()
	if len(events) == 0 {
		return
	}

	batch := coalesce(events)
	n.logf("watch: batch %s: %d events (%d raw)", batch.ID, len(batch.Events), len(events))
	select {
	case n.batches <- batch:
	case <-sess.done:
	}
}

// coalesce keeps the last event per path and orders the result by timestamp.
func coalesce(events []models.ChangeEvent) models.ChangeBatch {
	last := make(map[string]int, len(events))
	for i, ev := range events {
		last[ev.Path] = i
	}
	out := make([]models.ChangeEvent, 0, len(last))
	for i, ev := range events {
		if last[ev.Path] == i {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return models.ChangeBatch{ID: uuid.NewString(), Events: out}
}

func (n *Notifier) addTree(sess *session, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(n.root, path); relErr == nil && n.filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		n.addDir(sess, path)
		return nil
	})
}

func (n *Notifier) addDir(sess *session, path string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, ok := sess.dirs[path]; ok {
		return
	}
	if sess.watcher != nil {
		if err := sess.watcher.Add(path); err != nil {
			n.logf("watch: add failed for %s: %v", path, err)
			return
		}
	}
	sess.dirs[path] = struct{}{}
}
