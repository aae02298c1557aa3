// Package syncer keeps a cached view of a repository's status in step with
// the filesystem and serves parsed diffs on demand.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chmouel/treesync/internal/git"
	log "github.com/chmouel/treesync/internal/log"
	"github.com/chmouel/treesync/internal/models"
	"github.com/chmouel/treesync/internal/utils"
	"github.com/chmouel/treesync/internal/watch"
)

// DefaultRefreshDebounce is the delay between a refresh request and its execution.
const DefaultRefreshDebounce = 500 * time.Millisecond

var (
	ErrStatusFailed = errors.New("status check failed")
	ErrDiffFailed   = errors.New("diff retrieval failed")
	ErrClosed       = errors.New("orchestrator closed")
)

// Executor runs git with the given arguments against a fixed working directory.
type Executor interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// UpdateKind tells consumers which fields of an Update are set.
type UpdateKind int

const (
	// UpdateStatus carries a fresh status list, or Err with the last good one.
	UpdateStatus UpdateKind = iota
	// UpdateBranch signals that HEAD or a local branch ref moved.
	UpdateBranch
	// UpdateEvents carries the raw coalesced filesystem batch.
	UpdateEvents
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStatus:
		return "status"
	case UpdateBranch:
		return "branch"
	case UpdateEvents:
		return "events"
	default:
		return "unknown"
	}
}

// Update is a notification published on the Updates channel.
type Update struct {
	Kind    UpdateKind
	Entries []models.StatusEntry
	Summary models.StatusSummary
	Batch   models.ChangeBatch
	Err     error
}

// Options configures an Orchestrator.
type Options struct {
	// Root is the worktree directory. Required.
	Root string
	// MetadataDir overrides the git directory; resolved from Root when empty.
	MetadataDir     string
	CacheTTL        time.Duration
	RefreshDebounce time.Duration
	// Watch configures the notifier; its Root is ignored.
	Watch watch.Options
	Logf  func(string, ...any)
}

// Orchestrator owns the status cache of one worktree.
type Orchestrator struct {
	exec            Executor
	root            string
	rules           relevance
	ttl             time.Duration
	refreshDebounce time.Duration
	watchOpts       watch.Options
	logf            func(string, ...any)

	cache   *statusCache
	updates chan Update

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	timer      *time.Timer
	refreshSeq uint64
	watching   *watchSession

	// execMu keeps refresh executions from overlapping.
	execMu sync.Mutex
	// pubMu orders publishing against Close.
	pubMu sync.Mutex
}

type watchSession struct {
	cancel    context.CancelFunc
	notifiers []*watch.Notifier
	done      chan struct{}
}

// New creates an orchestrator for opts.Root backed by exec.
func New(exec Executor, opts Options) (*Orchestrator, error) {
	if exec == nil {
		return nil, errors.New("syncer: nil executor")
	}
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("syncer: empty root")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("syncer: resolve root: %w", err)
	}

	metaDir := opts.MetadataDir
	if metaDir == "" {
		metaDir = resolveMetadataDir(root)
	} else if !filepath.IsAbs(metaDir) {
		metaDir = filepath.Join(root, metaDir)
	}
	metaDir = filepath.Clean(metaDir)

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	debounce := opts.RefreshDebounce
	if debounce <= 0 {
		debounce = DefaultRefreshDebounce
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		exec:            exec,
		root:            root,
		rules:           relevance{root: root, metaDir: metaDir, commonDir: resolveCommonDir(metaDir)},
		ttl:             ttl,
		refreshDebounce: debounce,
		watchOpts:       opts.Watch,
		logf:            logf,
		cache:           newStatusCache(nil),
		updates:         make(chan Update, 32),
		baseCtx:         ctx,
		baseCancel:      cancel,
	}, nil
}

// Root returns the absolute worktree directory.
func (o *Orchestrator) Root() string {
	return o.root
}

// MetadataDir returns the resolved git directory.
func (o *Orchestrator) MetadataDir() string {
	return o.rules.metaDir
}

// CommonDir returns the directory holding shared refs. It differs from
// MetadataDir only for linked worktrees.
func (o *Orchestrator) CommonDir() string {
	return o.rules.commonDir
}

// Updates delivers status, branch and event notifications. It is closed by Close.
func (o *Orchestrator) Updates() <-chan Update {
	return o.updates
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// GetStatus returns the status entries, from the cache when useCache is set
// and the snapshot is fresh. On failure the cache is left untouched.
func (o *Orchestrator) GetStatus(ctx context.Context, useCache bool) ([]models.StatusEntry, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	if useCache {
		if entries, _, ok := o.cache.Get(o.ttl); ok {
			return entries, nil
		}
	}
	return o.fetchStatus(ctx)
}

func (o *Orchestrator) fetchStatus(ctx context.Context) ([]models.StatusEntry, error) {
	gen := o.cache.Generation()
	out, err := o.exec.Run(ctx, git.StatusArgs...)
	if err != nil {
		o.logf("sync: status failed for %s: %v", o.root, err)
		return nil, fmt.Errorf("%w: %w", ErrStatusFailed, err)
	}
	entries := git.ParseStatus(out)
	if !o.cache.Set(gen, entries) {
		o.logf("sync: cache invalidated during status fetch, result not cached")
	}
	return entries, nil
}

// GetSummary derives counts from the (possibly cached) status.
func (o *Orchestrator) GetSummary(ctx context.Context) (models.StatusSummary, error) {
	entries, err := o.GetStatus(ctx, true)
	if err != nil {
		return models.StatusSummary{}, err
	}
	return models.Summarize(entries), nil
}

// GetDiff returns the parsed diff of one file against the index (staged) or
// the working tree. It returns nil without error when the file has no diff.
// Results are memoized until the next invalidation and must not be modified.
func (o *Orchestrator) GetDiff(ctx context.Context, path string, staged bool) (*models.FileDiff, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	path = o.repoRelative(path)
	key := diffKey{path: path, staged: staged}
	if diff, ok := o.cache.Diff(key); ok {
		return diff, nil
	}

	gen := o.cache.Generation()
	out, err := o.exec.Run(ctx, git.DiffArgs(path, staged)...)
	if err != nil {
		o.logf("sync: diff failed for %s: %v", path, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrDiffFailed, path, err)
	}

	diff := pickFileDiff(git.ParseDiff(out), path)
	o.cache.SetDiff(gen, key, diff)
	return diff, nil
}

func pickFileDiff(files []models.FileDiff, path string) *models.FileDiff {
	if len(files) == 0 {
		return nil
	}
	for i := range files {
		if files[i].Path == path || files[i].OldPath == path {
			return &files[i]
		}
	}
	return &files[0]
}

func (o *Orchestrator) repoRelative(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	if rel, ok := utils.RelWithin(o.root, path); ok {
		return filepath.ToSlash(rel)
	}
	return path
}

// InvalidateCache drops the status snapshot and the diff memo. A status fetch
// already in flight will not repopulate the cache.
func (o *Orchestrator) InvalidateCache() {
	o.cache.Invalidate()
}

// LastKnown returns the last successfully fetched status and when it was captured.
func (o *Orchestrator) LastKnown() ([]models.StatusEntry, time.Time) {
	return o.cache.LastKnown()
}

// ShouldRefresh reports whether a change at absPath can alter the status.
func (o *Orchestrator) ShouldRefresh(absPath string) bool {
	return o.rules.shouldRefresh(absPath)
}

// RequestRefresh schedules a refresh after the debounce delay. A request made
// before the delay elapses replaces the pending one.
func (o *Orchestrator) RequestRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.refreshSeq++
	seq := o.refreshSeq
	o.timer = time.AfterFunc(o.refreshDebounce, func() { o.runRefresh(seq) })
}

// current reports whether seq is still the latest scheduled refresh.
func (o *Orchestrator) current(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && seq == o.refreshSeq
}

func (o *Orchestrator) runRefresh(seq uint64) {
	if u, ok := o.refresh(seq); ok {
		o.publish(u)
	}
}

// refresh fetches the status for seq. It reports false when seq was
// superseded before or during the fetch.
func (o *Orchestrator) refresh(seq uint64) (Update, bool) {
	o.execMu.Lock()
	defer o.execMu.Unlock()

	if !o.current(seq) {
		return Update{}, false
	}
	o.cache.Invalidate()
	entries, err := o.fetchStatus(o.baseCtx)
	if !o.current(seq) {
		o.logf("sync: discarding superseded refresh")
		return Update{}, false
	}

	if err != nil {
		last, _ := o.cache.LastKnown()
		return Update{Kind: UpdateStatus, Entries: last, Summary: models.Summarize(last), Err: err}, true
	}
	return Update{Kind: UpdateStatus, Entries: entries, Summary: models.Summarize(entries)}, true
}

// publish never blocks. When the buffer is full an events update is dropped,
// while status and branch updates evict the oldest queued update.
func (o *Orchestrator) publish(u Update) {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	if o.isClosed() {
		return
	}
	for {
		select {
		case o.updates <- u:
			return
		default:
		}
		if u.Kind == UpdateEvents {
			o.logf("sync: updates full, dropping batch %s", u.Batch.ID)
			return
		}
		select {
		case old := <-o.updates:
			o.logf("sync: updates full, dropping queued %s update", old.Kind)
		default:
		}
	}
}

// StartWatching starts the filesystem notifier for the worktree, plus one for
// each git directory that lives outside the worktree. Calling it while
// already watching is a no-op.
func (o *Orchestrator) StartWatching(ctx context.Context) error {
	if active, err := o.activeSession(); err != nil || active {
		return err
	}

	roots := append([]string{o.root}, o.rules.gitDirs()...)

	// notifiers are started without holding mu
	wctx, cancel := context.WithCancel(ctx)
	sess := &watchSession{cancel: cancel, done: make(chan struct{})}
	for _, root := range roots {
		opts := o.watchOpts
		opts.Root = root
		if opts.Logf == nil {
			opts.Logf = o.logf
		}
		if root != o.root {
			opts.Filter = metadataFilter(opts.Filter)
		}
		n := watch.New(opts)
		if err := n.Start(wctx); err != nil {
			sess.stop()
			return err
		}
		sess.notifiers = append(sess.notifiers, n)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		sess.stop()
		return ErrClosed
	}
	if o.watching != nil && !o.watching.finished() {
		// lost a race with a concurrent StartWatching
		sess.stop()
		return nil
	}

	stopOnClose := context.AfterFunc(o.baseCtx, cancel)
	o.watching = sess
	go func() {
		defer close(sess.done)
		defer stopOnClose()
		o.pump(wctx, sess.notifiers)
	}()
	o.logf("sync: watching %s", strings.Join(roots, ", "))
	return nil
}

// activeSession reports whether a watch session is running.
func (o *Orchestrator) activeSession() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, ErrClosed
	}
	if o.watching != nil && o.watching.finished() {
		o.watching = nil
	}
	return o.watching != nil, nil
}

func (s *watchSession) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// stop tears down a session whose pump never started.
func (s *watchSession) stop() {
	s.cancel()
	for _, n := range s.notifiers {
		n.Stop()
	}
}

// metadataFilter rebases ".git/"-relative ignore rules onto a notifier
// rooted at the metadata directory itself.
func metadataFilter(f watch.Filter) watch.Filter {
	if f.IgnoredMetadataPaths == nil && f.IgnoredExtensions == nil && f.TempSuffixes == nil {
		f = watch.DefaultFilter()
	}
	paths := make([]string, 0, len(f.IgnoredMetadataPaths))
	for _, p := range f.IgnoredMetadataPaths {
		paths = append(paths, strings.TrimPrefix(filepath.ToSlash(p), ".git/"))
	}
	f.IgnoredMetadataPaths = paths
	return f
}

// pump turns notifier batches into updates and refresh requests.
func (o *Orchestrator) pump(ctx context.Context, notifiers []*watch.Notifier) {
	batches := make(chan models.ChangeBatch)
	var wg sync.WaitGroup
	for _, n := range notifiers {
		wg.Add(1)
		go func(n *watch.Notifier) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-n.Errors():
					o.logf("sync: watcher error on %s: %v", n.Root(), err)
				case b := <-n.Batches():
					select {
					case batches <- b:
					case <-ctx.Done():
						return
					}
				}
			}
		}(n)
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-batches:
			o.handleBatch(batch)
		}
	}
}

// handleBatch invalidates the cache for qualifying paths before anything is
// published.
func (o *Orchestrator) handleBatch(batch models.ChangeBatch) {
	relevant, branch := 0, false
	for _, ev := range batch.Events {
		if !o.rules.shouldRefresh(ev.Path) {
			continue
		}
		relevant++
		if o.rules.touchesBranch(ev.Path) {
			branch = true
		}
	}
	if relevant > 0 {
		o.logf("sync: batch %s: %d relevant of %d", batch.ID, relevant, len(batch.Events))
		o.cache.Invalidate()
	} else {
		o.logf("sync: batch %s: no relevant paths", batch.ID)
	}

	o.publish(Update{Kind: UpdateEvents, Batch: batch})
	if relevant == 0 {
		return
	}
	if branch {
		o.publish(Update{Kind: UpdateBranch, Batch: batch})
	}
	o.RequestRefresh()
}

// StopWatching stops the notifiers. Pending batches are dropped.
func (o *Orchestrator) StopWatching() {
	o.mu.Lock()
	sess := o.watching
	o.watching = nil
	o.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	for _, n := range sess.notifiers {
		n.Stop()
	}
	<-sess.done
}

// Stage adds paths to the index, then invalidates and schedules a refresh.
func (o *Orchestrator) Stage(ctx context.Context, paths ...string) error {
	return o.mutate(ctx, append([]string{"add", "--"}, o.relativePaths(paths)...))
}

// Unstage removes paths from the index, keeping working tree changes.
func (o *Orchestrator) Unstage(ctx context.Context, paths ...string) error {
	return o.mutate(ctx, append([]string{"restore", "--staged", "--"}, o.relativePaths(paths)...))
}

func (o *Orchestrator) relativePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, o.repoRelative(p))
	}
	return out
}

func (o *Orchestrator) mutate(ctx context.Context, args []string) error {
	if o.isClosed() {
		return ErrClosed
	}
	if len(args) == 0 || args[len(args)-1] == "--" {
		return errors.New("syncer: no paths given")
	}
	_, err := o.exec.Run(ctx, args...)
	o.InvalidateCache()
	o.RequestRefresh()
	if err != nil {
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	return nil
}

// Close stops watching, cancels pending refreshes and closes Updates.
// Results of executions still running are discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
	o.mu.Unlock()

	o.baseCancel()
	o.StopWatching()

	// no publish can be in progress past this point
	o.pubMu.Lock()
	close(o.updates)
	o.pubMu.Unlock()
	o.logf("sync: closed %s", o.root)
}
