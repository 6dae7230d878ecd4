package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatecarbon/slatecarbon/pkg/model"
	"github.com/slatecarbon/slatecarbon/pkg/storage"
)

type fakeClient struct {
	mu        sync.Mutex
	reachable bool
	snap      model.Snapshot

	downloadErr  error
	uploadErr    error
	downloads    int
	uploads      []model.Snapshot
	downloadGate chan struct{} // when set, Download blocks until closed
}

func (f *fakeClient) Reachable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

func (f *fakeClient) Download(context.Context) (*model.Snapshot, error) {
	f.mu.Lock()
	f.downloads++
	gate := f.downloadGate
	err := f.downloadErr
	snap := f.snap
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (f *fakeClient) Upload(_ context.Context, snap model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, snap)
	return nil
}

func (f *fakeClient) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

func newTestEngine(t *testing.T, client *fakeClient, cfg model.SyncConfig) (*Engine, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "sync.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := NewEngine(Config{
		Store:     db,
		Client:    client,
		Sync:      cfg,
		BaseDelay: 20 * time.Millisecond,
	})
	return e, db
}

func defaultCfg() model.SyncConfig {
	return model.SyncConfig{AutoSync: true, IntervalMinutes: 30, MaxRetries: 2, Conflicts: model.PolicyManual}
}

func remoteProject(id, name string, updated time.Time) model.Project {
	return model.Project{ID: id, Name: name, Status: model.StatusActive, Budget: decimal.NewFromInt(1000), CreatedAt: updated, UpdatedAt: updated}
}

func TestOfflineIsANoOp(t *testing.T) {
	client := &fakeClient{reachable: false}
	e, db := newTestEngine(t, client, defaultCfg())
	ctx := context.Background()

	res := e.Run(ctx, true)
	assert.Equal(t, model.SyncOffline, res.Status)
	assert.Equal(t, 0, client.downloadCount())

	last, err := db.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "offline pass must not advance lastSyncTime")

	projects, err := db.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects, "offline pass must not mutate local state")
}

func TestSuccessfulPassAdoptsRemote(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	client := &fakeClient{reachable: true, snap: model.Snapshot{
		Projects: []model.Project{remoteProject("p1", "Night Shoot", now)},
		Records: []model.EmissionRecord{
			{ID: "r1", ProjectID: "p1", Stage: model.StageProduction, Amount: decimal.NewFromInt(12), CreatedAt: now, UpdatedAt: now},
		},
	}}
	e, db := newTestEngine(t, client, defaultCfg())
	ctx := context.Background()

	res := e.Run(ctx, true)
	require.Equal(t, model.SyncSuccess, res.Status, res.Message)
	require.NotNil(t, res.Counts)
	assert.Equal(t, 1, res.Counts.Projects)
	assert.Equal(t, 1, res.Counts.Records)
	assert.Equal(t, 0, res.Counts.Uploaded)

	projects, err := db.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Night Shoot", projects[0].Name)

	last, err := db.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestSyncIdempotence(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	client := &fakeClient{reachable: true, snap: model.Snapshot{
		Projects: []model.Project{remoteProject("p1", "Night Shoot", now), remoteProject("p2", "Doc Series", now)},
	}}
	e, db := newTestEngine(t, client, defaultCfg())
	ctx := context.Background()

	require.Equal(t, model.SyncSuccess, e.Run(ctx, true).Status)
	first, err := db.ListProjects(ctx)
	require.NoError(t, err)

	require.Equal(t, model.SyncSuccess, e.Run(ctx, true).Status)
	second, err := db.ListProjects(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second, "second pass with unchanged remote must not change local state")
	assert.Empty(t, client.uploads, "nothing local-only, nothing must be uploaded")
}

func TestLocalOnlyIsUploaded(t *testing.T) {
	client := &fakeClient{reachable: true}
	e, db := newTestEngine(t, client, defaultCfg())
	ctx := context.Background()

	local := model.Project{ID: "mine", Name: "Short Film", Status: model.StatusPlanning, Budget: decimal.Zero, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, db.SaveProject(ctx, local))

	res := e.Run(ctx, true)
	require.Equal(t, model.SyncSuccess, res.Status, res.Message)
	require.Len(t, client.uploads, 1)
	require.Len(t, client.uploads[0].Projects, 1)
	assert.Equal(t, "mine", client.uploads[0].Projects[0].ID)

	// Uploaded rows are clean; the next pass uploads nothing.
	client.mu.Lock()
	client.snap.Projects = []model.Project{local}
	client.mu.Unlock()
	res = e.Run(ctx, true)
	require.Equal(t, model.SyncSuccess, res.Status)
	assert.Len(t, client.uploads, 1, "no duplicate upload attempts")
}

func TestConflictDeterminism(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	ctx := context.Background()

	run := func(localUpdated, remoteUpdated time.Time) (model.Project, []model.Snapshot) {
		client := &fakeClient{reachable: true, snap: model.Snapshot{
			Projects: []model.Project{remoteProject("p1", "remote name", remoteUpdated)},
		}}
		e, db := newTestEngine(t, client, defaultCfg())

		local := remoteProject("p1", "local name", localUpdated)
		require.NoError(t, db.SaveProject(ctx, local))

		res := e.Run(ctx, true)
		require.Equal(t, model.SyncSuccess, res.Status, res.Message)
		projects, err := db.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		return projects[0], client.uploads
	}

	remoteWins, uploads := run(older, newer)
	assert.Equal(t, "remote name", remoteWins.Name)
	assert.Empty(t, uploads, "losing local edit must not be pushed")

	localWins, uploads := run(newer, older)
	assert.Equal(t, "local name", localWins.Name)
	require.Len(t, uploads, 1, "winning local edit is pushed upstream")
	assert.Equal(t, "local name", uploads[0].Projects[0].Name)
}

func TestDebounceSkipsRecentSync(t *testing.T) {
	client := &fakeClient{reachable: true}
	e, db := newTestEngine(t, client, defaultCfg())
	ctx := context.Background()

	require.NoError(t, db.SetLastSyncTime(ctx, time.Now().UTC()))

	res := e.Run(ctx, false)
	assert.Equal(t, model.SyncIdle, res.Status)
	assert.Equal(t, 0, client.downloadCount())

	res = e.Run(ctx, true)
	assert.Equal(t, model.SyncSuccess, res.Status, "force bypasses the debounce gate")
}

func TestUploadFailureKeepsMerge(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	client := &fakeClient{
		reachable: true,
		uploadErr: errors.New("boom"),
		snap:      model.Snapshot{Projects: []model.Project{remoteProject("p1", "Night Shoot", now)}},
	}
	cfg := defaultCfg()
	cfg.MaxRetries = 0
	e, db := newTestEngine(t, client, cfg)
	ctx := context.Background()

	require.NoError(t, db.SaveProject(ctx, model.Project{ID: "mine", Name: "Local", Budget: decimal.Zero, CreatedAt: now, UpdatedAt: now}))

	res := e.Run(ctx, true)
	assert.Equal(t, model.SyncError, res.Status)

	// The merge was applied even though the upload failed.
	projects, err := db.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	last, err := db.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "failed pass must not advance lastSyncTime")
}

func TestFailedUploadKeepsLocalEditPending(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	client := &fakeClient{
		reachable: true,
		uploadErr: errors.New("boom"),
		snap:      model.Snapshot{Projects: []model.Project{remoteProject("p1", "remote name", older)}},
	}
	cfg := defaultCfg()
	cfg.MaxRetries = 0
	e, db := newTestEngine(t, client, cfg)
	ctx := context.Background()

	local := remoteProject("p1", "local name", newer)
	require.NoError(t, db.SaveProject(ctx, local))

	res := e.Run(ctx, true)
	require.Equal(t, model.SyncError, res.Status)
	assert.Empty(t, client.uploads)

	// The winning local edit survived apply as pending work.
	dirty, err := db.DirtyIDs(ctx, storage.KindProject)
	require.NoError(t, err)
	assert.True(t, dirty["p1"], "local edit must stay pending after a failed upload")

	client.mu.Lock()
	client.uploadErr = nil
	client.mu.Unlock()

	res = e.Run(ctx, true)
	require.Equal(t, model.SyncSuccess, res.Status, res.Message)
	require.Len(t, client.uploads, 1, "local edit lost: nothing uploaded after the failed pass")
	require.Len(t, client.uploads[0].Projects, 1)
	assert.Equal(t, "local name", client.uploads[0].Projects[0].Name)

	// Pushed rows are clean again; a further pass uploads nothing.
	res = e.Run(ctx, true)
	require.Equal(t, model.SyncSuccess, res.Status)
	assert.Len(t, client.uploads, 1)
}

func TestWatchTickerTriggersPass(t *testing.T) {
	client := &fakeClient{reachable: true}
	db, err := storage.Open(filepath.Join(t.TempDir(), "watch.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := NewEngine(Config{
		Store:        db,
		Client:       client,
		Sync:         defaultCfg(),
		BaseDelay:    20 * time.Millisecond,
		TickInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Watch(ctx, nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return client.downloadCount() >= 1
	}, 2*time.Second, 5*time.Millisecond, "ticker never triggered a pass")

	cancel()
	<-done
}

func TestWatchOnlineEvent(t *testing.T) {
	client := &fakeClient{reachable: true}
	cfg := defaultCfg()
	cfg.AutoSync = false
	e, _ := newTestEngine(t, client, cfg)

	online := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Watch(ctx, online)
		close(done)
	}()

	// autoSync off: no timer, nothing happens on its own.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, client.downloadCount())

	online <- struct{}{}
	require.Eventually(t, func() bool {
		return client.downloadCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "connectivity event never triggered a pass")

	// A second event right after a successful pass hits the debounce gate.
	online <- struct{}{}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, client.downloadCount())

	cancel()
	<-done
}

func TestRetryExhaustion(t *testing.T) {
	client := &fakeClient{reachable: true, downloadErr: errors.New("boom")}
	cfg := defaultCfg()
	cfg.MaxRetries = 2
	e, _ := newTestEngine(t, client, cfg)

	res := e.Run(context.Background(), true)
	assert.Equal(t, model.SyncError, res.Status)
	assert.Contains(t, res.Message, "retry 1/2")
	assert.True(t, e.RetryPending())

	// Two scheduled retries fire, then the engine gives up.
	require.Eventually(t, func() bool {
		return client.downloadCount() == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		last := e.LastResult()
		return last.Status == model.SyncError && last.Message != "" && client.downloadCount() == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, e.LastResult().Message, "gave up")
	require.Eventually(t, func() bool {
		return !e.RetryPending()
	}, 2*time.Second, 10*time.Millisecond, "no retry left pending after giving up")

	// A fresh external trigger resets the budget.
	res = e.Run(context.Background(), true)
	assert.Contains(t, res.Message, "retry 1/2")
}

func TestSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{reachable: true, downloadGate: gate}
	e, _ := newTestEngine(t, client, defaultCfg())

	done := make(chan model.SyncResult, 1)
	go func() { done <- e.Run(context.Background(), true) }()

	require.Eventually(t, func() bool {
		return client.downloadCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Second call while the first pass is blocked in fetch: a no-op.
	res := e.Run(context.Background(), true)
	assert.Equal(t, model.SyncIdle, res.Status)
	assert.Contains(t, res.Message, "in progress")

	close(gate)
	first := <-done
	assert.Equal(t, model.SyncSuccess, first.Status)
	assert.Equal(t, 1, client.downloadCount())
}
