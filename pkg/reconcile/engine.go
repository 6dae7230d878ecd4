// Package reconcile merges the local entity snapshot with the server's copy:
// connectivity and debounce gates, a single-flight guarantee, per-type merge
// in a fixed order, best-effort upload of local-only work, and retry with
// backoff on transport failures.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slatecarbon/slatecarbon/pkg/model"
	"github.com/slatecarbon/slatecarbon/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Client is the transport the engine reconciles against. pkg/remote satisfies
// it; tests substitute fakes.
type Client interface {
	Reachable(ctx context.Context) bool
	Download(ctx context.Context) (*model.Snapshot, error)
	Upload(ctx context.Context, snap model.Snapshot) error
}

// Config holds everything the engine needs for one store/server pair.
type Config struct {
	Store  *storage.DB
	Client Client
	Sync   model.SyncConfig
	Log    Logger // optional; nil = no logging

	// BaseDelay scales the retry backoff (delay = BaseDelay * retryCount).
	// Defaults to 30s.
	BaseDelay time.Duration
	// CallTimeout bounds each network call. Defaults to 30s. A timed-out
	// call is a transport failure and goes through the retry path.
	CallTimeout time.Duration
	// TickInterval overrides Sync.Interval() for the watch timer. Zero
	// means use the configured interval.
	TickInterval time.Duration
}

type Engine struct {
	store       *storage.DB
	client      Client
	cfg          model.SyncConfig
	log          Logger
	baseDelay    time.Duration
	callTimeout  time.Duration
	tickInterval time.Duration

	// flight is held for the whole of one pass: two passes never run
	// concurrently against the same local state.
	flight sync.Mutex

	mu           sync.Mutex // guards the fields below
	retryCount   int
	retryTimer   *time.Timer
	retryPending bool
	last         model.SyncResult

	now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 30 * time.Second
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Engine{
		store:        cfg.Store,
		client:       cfg.Client,
		cfg:          cfg.Sync,
		log:          log,
		baseDelay:    baseDelay,
		callTimeout:  callTimeout,
		tickInterval: cfg.TickInterval,
		now:          time.Now,
	}
}

// LastResult returns the outcome of the most recent attempt.
func (e *Engine) LastResult() model.SyncResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Run performs one reconciliation attempt. External triggers (timer tick,
// connectivity event, manual call) reset the retry budget; force skips the
// debounce gate. When a pass is already in flight the call is a no-op and
// reports idle rather than starting a second concurrent pass.
func (e *Engine) Run(ctx context.Context, force bool) model.SyncResult {
	e.mu.Lock()
	e.retryCount = 0
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.retryPending = false
	e.mu.Unlock()
	return e.run(ctx, force)
}

// RetryPending reports whether a scheduled backoff retry has yet to finish.
// One-shot callers can use it to wait instead of exiting with a retry still
// queued on a timer that would die with the process.
func (e *Engine) RetryPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryPending
}

// Watch drives the engine until ctx is cancelled: a ticker at the configured
// interval (when autoSync is on) plus connectivity-regained events delivered
// on online. Manual Run calls remain possible alongside.
func (e *Engine) Watch(ctx context.Context, online <-chan struct{}) {
	var tick <-chan time.Time
	if e.cfg.AutoSync {
		interval := e.tickInterval
		if interval <= 0 {
			interval = e.cfg.Interval()
		}
		if interval > 0 {
			t := time.NewTicker(interval)
			defer t.Stop()
			tick = t.C
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			e.Run(ctx, false)
		case _, ok := <-online:
			if !ok {
				online = nil
				continue
			}
			e.log.Infof("connectivity regained, reconciling")
			e.Run(ctx, false)
		}
	}
}

func (e *Engine) run(ctx context.Context, force bool) model.SyncResult {
	if !e.flight.TryLock() {
		// Joining the in-flight pass: its result becomes visible via
		// LastResult; this call must not start a second one.
		return model.SyncResult{Status: model.SyncIdle, Message: "reconciliation already in progress", Timestamp: e.now()}
	}
	defer e.flight.Unlock()

	// Connectivity gate. Offline costs nothing: no state change, no retry
	// budget consumed.
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	reachable := e.client.Reachable(cctx)
	cancel()
	if !reachable {
		e.log.Infof("server unreachable, skipping pass")
		return e.finish(model.SyncResult{Status: model.SyncOffline, Message: "server unreachable", Timestamp: e.now()})
	}

	// Debounce gate.
	lastSync, err := e.store.LastSyncTime(ctx)
	if err != nil {
		return e.fail(ctx, fmt.Errorf("read last sync time: %w", err))
	}
	if !force && !lastSync.IsZero() && e.now().Sub(lastSync) < e.cfg.Interval() {
		e.log.Debugf("synced %s ago, skipping", e.now().Sub(lastSync))
		return e.finish(model.SyncResult{Status: model.SyncIdle, Message: "recently synced", Timestamp: e.now()})
	}

	e.setLast(model.SyncResult{Status: model.SyncSyncing, Message: "reconciling", Timestamp: e.now()})

	// Fetch. All collections or nothing: a failed fetch aborts the pass
	// before any merge is applied.
	cctx, cancel = context.WithTimeout(ctx, e.callTimeout)
	snap, err := e.client.Download(cctx)
	cancel()
	if err != nil {
		return e.fail(ctx, fmt.Errorf("fetch remote snapshot: %w", err))
	}

	localProjects, err := e.store.ListProjects(ctx)
	if err != nil {
		return e.fail(ctx, err)
	}
	localRecords, err := e.store.ListRecords(ctx)
	if err != nil {
		return e.fail(ctx, err)
	}
	localOperational, err := e.store.ListOperational(ctx)
	if err != nil {
		return e.fail(ctx, err)
	}

	// Dirty marks must be read before apply rewrites the rows clean.
	dirty, err := e.dirtySets(ctx)
	if err != nil {
		return e.fail(ctx, err)
	}

	// Merge and apply in a fixed order, projects first, so records merged
	// later can assume their referenced project ids already exist locally.
	projects := mergeByID(localProjects, snap.Projects, e.cfg.Conflicts)
	records := mergeByID(localRecords, snap.Records, e.cfg.Conflicts)
	operational := mergeByID(localOperational, snap.Operational, e.cfg.Conflicts)

	if err := e.store.ApplyProjects(ctx, projects.merged); err != nil {
		return e.fail(ctx, fmt.Errorf("apply projects: %w", err))
	}
	if err := e.store.ApplyRecords(ctx, records.merged); err != nil {
		return e.fail(ctx, fmt.Errorf("apply records: %w", err))
	}
	if err := e.store.ApplyOperational(ctx, operational.merged); err != nil {
		return e.fail(ctx, fmt.Errorf("apply operational records: %w", err))
	}

	counts := model.SyncCounts{
		Projects:    len(projects.merged),
		Records:     len(records.merged),
		Operational: len(operational.merged),
	}

	// Upload local-only work, best effort: a failure here downgrades the
	// pass to error but never rolls back the merge already applied.
	upload := model.Snapshot{
		Projects:    appendDirtyWinners(projects.localOnly, localProjects, snap.Projects, dirty.projects, e.cfg.Conflicts),
		Records:     appendDirtyWinners(records.localOnly, localRecords, snap.Records, dirty.records, e.cfg.Conflicts),
		Operational: appendDirtyWinners(operational.localOnly, localOperational, snap.Operational, dirty.operational, e.cfg.Conflicts),
	}
	counts.Uploaded = len(upload.Projects) + len(upload.Records) + len(upload.Operational)
	if counts.Uploaded > 0 {
		// Apply rewrote the upload set clean, but nothing has reached the
		// server yet. Flag it again so a failed upload leaves those rows
		// pending for the next pass; only a successful push clears them.
		if err := e.flagUploads(ctx, upload, e.store.MarkDirty); err != nil {
			return e.fail(ctx, err)
		}
		cctx, cancel = context.WithTimeout(ctx, e.callTimeout)
		err = e.client.Upload(cctx, upload)
		cancel()
		if err != nil {
			return e.fail(ctx, fmt.Errorf("upload local changes: %w", err))
		}
		if err := e.flagUploads(ctx, upload, e.store.ClearDirty); err != nil {
			return e.fail(ctx, err)
		}
	}

	now := e.now()
	if err := e.store.SetLastSyncTime(ctx, now); err != nil {
		return e.fail(ctx, fmt.Errorf("persist last sync time: %w", err))
	}

	e.mu.Lock()
	e.retryCount = 0
	e.mu.Unlock()

	e.log.Infof("reconciled: %d projects, %d records, %d operational, %d uploaded",
		counts.Projects, counts.Records, counts.Operational, counts.Uploaded)
	return e.finish(model.SyncResult{
		Status:    model.SyncSuccess,
		Message:   "up to date",
		Timestamp: now,
		Counts:    &counts,
	})
}

type dirtySets struct {
	projects    map[string]bool
	records     map[string]bool
	operational map[string]bool
}

func (e *Engine) dirtySets(ctx context.Context) (dirtySets, error) {
	var d dirtySets
	var err error
	if d.projects, err = e.store.DirtyIDs(ctx, storage.KindProject); err != nil {
		return d, err
	}
	if d.records, err = e.store.DirtyIDs(ctx, storage.KindRecord); err != nil {
		return d, err
	}
	d.operational, err = e.store.DirtyIDs(ctx, storage.KindOperational)
	return d, err
}

// appendDirtyWinners extends the local-only upload set with locally edited
// rows that also exist remotely but whose local copy won the merge. Under a
// server-wins policy the local edit was just overwritten, so pushing the
// stale copy would resurrect it.
func appendDirtyWinners[T entity](uploads, local, remote []T, dirty map[string]bool, policy model.ConflictPolicy) []T {
	if policy == model.PolicyServer {
		return uploads
	}
	inUpload := make(map[string]bool, len(uploads))
	for _, u := range uploads {
		inUpload[u.EntityID()] = true
	}
	remoteByID := make(map[string]T, len(remote))
	for _, r := range remote {
		remoteByID[r.EntityID()] = r
	}
	for _, l := range local {
		id := l.EntityID()
		if !dirty[id] || inUpload[id] {
			continue
		}
		r, both := remoteByID[id]
		if !both {
			continue // already covered by the local-only set
		}
		if policy == model.PolicyLocal || l.LastModified().After(r.LastModified()) {
			uploads = append(uploads, l)
		}
	}
	return uploads
}

func (e *Engine) flagUploads(ctx context.Context, up model.Snapshot, flag func(context.Context, storage.Kind, []string) error) error {
	ids := func(n int, get func(int) string) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = get(i)
		}
		return out
	}
	if err := flag(ctx, storage.KindProject, ids(len(up.Projects), func(i int) string { return up.Projects[i].ID })); err != nil {
		return err
	}
	if err := flag(ctx, storage.KindRecord, ids(len(up.Records), func(i int) string { return up.Records[i].ID })); err != nil {
		return err
	}
	return flag(ctx, storage.KindOperational, ids(len(up.Operational), func(i int) string { return up.Operational[i].ID }))
}

// fail routes a post-gate failure through the retry path: while budget
// remains the next attempt is scheduled at baseDelay*retryCount; after that,
// automatic retries stop until the next external trigger resets the counter.
func (e *Engine) fail(ctx context.Context, err error) model.SyncResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log.Errorf("reconciliation failed: %v", err)
	res := model.SyncResult{Status: model.SyncError, Timestamp: e.now()}

	if e.retryCount < e.cfg.MaxRetries {
		e.retryCount++
		delay := e.baseDelay * time.Duration(e.retryCount)
		attempt := e.retryCount
		e.retryPending = true
		e.retryTimer = time.AfterFunc(delay, func() {
			e.mu.Lock()
			e.retryTimer = nil
			e.mu.Unlock()
			e.log.Infof("retrying reconciliation (attempt %d)", attempt)
			e.run(context.Background(), true)
			// The retry chain is over unless this run scheduled another one.
			e.mu.Lock()
			e.retryPending = e.retryTimer != nil
			e.mu.Unlock()
		})
		res.Message = fmt.Sprintf("%v (retry %d/%d in %s)", err, e.retryCount, e.cfg.MaxRetries, delay)
	} else {
		res.Message = fmt.Sprintf("%v (gave up after %d retries)", err, e.cfg.MaxRetries)
	}
	e.last = res
	return res
}

func (e *Engine) setLast(res model.SyncResult) {
	e.mu.Lock()
	e.last = res
	e.mu.Unlock()
}

func (e *Engine) finish(res model.SyncResult) model.SyncResult {
	e.setLast(res)
	return res
}
