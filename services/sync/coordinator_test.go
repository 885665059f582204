package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/kv"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/utils"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

// fakeStateRepo is an in-memory SyncStateRepository for coordinator tests.
type fakeStateRepo struct {
	mu     gosync.Mutex
	states map[string]*models.IntegrationSyncState
	err    error
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*models.IntegrationSyncState)}
}

func stateKey(userID string, provider enum.Provider) string {
	return userID + "|" + provider.String()
}

func (r *fakeStateRepo) GetSyncState(_ context.Context, userID string, provider enum.Provider) (*models.IntegrationSyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	state, ok := r.states[stateKey(userID, provider)]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (r *fakeStateRepo) SaveSyncState(_ context.Context, state *models.IntegrationSyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	copied := *state
	r.states[stateKey(state.UserID, state.Provider)] = &copied
	return nil
}

func (r *fakeStateRepo) UpdateStatus(_ context.Context, userID string, provider enum.Provider, status enum.SyncStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	key := stateKey(userID, provider)
	state, ok := r.states[key]
	if !ok {
		state = &models.IntegrationSyncState{UserID: userID, Provider: provider}
		r.states[key] = state
	}
	state.Status = status
	state.LastError = lastError
	if status == enum.SyncStatusCompleted {
		state.LastSyncAt = utils.NowPtr()
	}
	return nil
}

func (r *fakeStateRepo) SaveSyncToken(_ context.Context, userID string, provider enum.Provider, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	key := stateKey(userID, provider)
	state, ok := r.states[key]
	if !ok {
		state = &models.IntegrationSyncState{UserID: userID, Provider: provider, Status: enum.SyncStatusPending}
		r.states[key] = state
	}
	state.SyncToken = token
	return nil
}

func (r *fakeStateRepo) DeleteSyncState(_ context.Context, userID string, provider enum.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, stateKey(userID, provider))
	return nil
}

func (r *fakeStateRepo) GetStaleStates(_ context.Context, olderThan time.Time) ([]models.IntegrationSyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []models.IntegrationSyncState
	for _, state := range r.states {
		if state.LastSyncAt == nil || state.LastSyncAt.Before(olderThan) {
			stale = append(stale, *state)
		}
	}
	return stale, nil
}

func newTestCoordinator(store *kv.MemoryStore) (*Coordinator, *fakeStateRepo) {
	repo := newFakeStateRepo()
	return NewCoordinator(store, repo, nil, getLogger()), repo
}

func TestAcquireSyncLock_ExclusivePerPair(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())

	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderGmail, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	again, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderGmail, time.Minute)
	require.NoError(t, err)
	assert.False(t, again, "second acquisition for the same pair must fail")

	// a different pair is unaffected
	other, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderSlack, time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestAcquireSyncLock_ReacquirableAfterTTL(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	coordinator, _ := newTestCoordinator(store)

	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderGmail, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	current = current.Add(61 * time.Second)

	again, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderGmail, time.Minute)
	require.NoError(t, err)
	assert.True(t, again, "expired lock must be acquirable")
}

func TestReleaseSyncLock_SkipsLockOwnedByOthers(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	coordinator, _ := newTestCoordinator(store)

	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderGmail, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// TTL lapses and another holder takes the lock
	current = current.Add(61 * time.Second)
	require.NoError(t, store.Set(ctx, "lock:gmail:u1", "someone-else", time.Minute))

	require.NoError(t, coordinator.ReleaseSyncLock(ctx, "u1", enum.ProviderGmail))

	value, found, err := store.Get(ctx, "lock:gmail:u1")
	require.NoError(t, err)
	assert.True(t, found, "a lock held by another owner must survive our release")
	assert.Equal(t, "someone-else", value)
}

func TestExecuteWithLock_ExactlyOneBodyRuns(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())

	var bodies int32
	var contention int32
	var wg gosync.WaitGroup

	// the winner's body blocks until every loser has been turned away, so
	// all ten goroutines contend against a held lock
	proceed := make(chan struct{})

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := coordinator.ExecuteWithLock(ctx, "u1", enum.ProviderGmail, time.Minute, func(ctx context.Context) error {
				atomic.AddInt32(&bodies, 1)
				<-proceed
				return nil
			})
			if errors.Is(err, syncerrors.ErrLockContention) {
				atomic.AddInt32(&contention, 1)
			}
		}()
	}

	for atomic.LoadInt32(&contention) < 9 {
		time.Sleep(time.Millisecond)
	}
	close(proceed)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&bodies), "exactly one body may run")
	assert.Equal(t, int32(9), atomic.LoadInt32(&contention))
}

func TestExecuteWithLock_ReleasesOnBodyError(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())

	err := coordinator.ExecuteWithLock(ctx, "u1", enum.ProviderSlack, time.Minute, func(ctx context.Context) error {
		return errors.New("worker exploded")
	})
	require.Error(t, err)

	// the lock must be free again
	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderSlack, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

// outageStore fails every operation, simulating the store being down.
type outageStore struct{}

func (outageStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unreachable")
}

func (outageStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store unreachable")
}

func (outageStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store unreachable")
}

func (outageStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("store unreachable")
}

func (outageStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("store unreachable")
}

func (outageStore) TTL(context.Context, string) (time.Duration, bool, error) {
	return 0, false, errors.New("store unreachable")
}

func (outageStore) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errors.New("store unreachable")
}

func (outageStore) Del(context.Context, ...string) error {
	return errors.New("store unreachable")
}

func TestAcquireSyncLock_FailsClosedOnStoreOutage(t *testing.T) {
	ctx := context.Background()
	coordinator := NewCoordinator(outageStore{}, newFakeStateRepo(), nil, getLogger())

	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderGmail, time.Minute)
	assert.False(t, acquired, "store outage must not grant locks")
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrors.ErrStoreUnavailable)
}

func TestStartSync_MarksSyncingAndCreatesProgress(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())

	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeFull}

	syncID, err := coordinator.StartSync(ctx, config)
	require.NoError(t, err)
	assert.NotEmpty(t, syncID)

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, enum.SyncStatusSyncing, state.Status)

	progress, err := coordinator.GetSyncProgress(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusSyncing, progress.Status)
	assert.Equal(t, "starting", progress.CurrentPhase)
}

func TestStartSync_MarksFailedWhenInitializationFails(t *testing.T) {
	ctx := context.Background()
	repo := newFakeStateRepo()
	repo.err = errors.New("database down")
	coordinator := NewCoordinator(kv.NewMemoryStore(), repo, nil, getLogger())

	config := models.SyncConfig{Provider: enum.ProviderSlack, UserID: "u1", SyncType: enum.SyncTypeFull}

	_, err := coordinator.StartSync(ctx, config)
	require.Error(t, err)
}

func TestUpdateSyncProgress_MutatesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())

	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeFull}
	_, err := coordinator.StartSync(ctx, config)
	require.NoError(t, err)

	total := 120
	err = coordinator.UpdateSyncProgress(ctx, "u1", enum.ProviderGmail, func(p *models.SyncProgress) {
		p.ItemsProcessed = 40
		p.TotalItems = &total
		p.CurrentPhase = "messages"
	})
	require.NoError(t, err)

	progress, err := coordinator.GetSyncProgress(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, 40, progress.ItemsProcessed)
	require.NotNil(t, progress.TotalItems)
	assert.Equal(t, 120, *progress.TotalItems)
	assert.Equal(t, "messages", progress.CurrentPhase)
}

func TestSyncProgress_NotFoundWhenAbsentOrExpired(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	coordinator, _ := newTestCoordinator(store)

	_, err := coordinator.GetSyncProgress(ctx, "u1", enum.ProviderTelegram)
	assert.ErrorIs(t, err, syncerrors.ErrProgressNotFound)

	err = coordinator.UpdateSyncProgress(ctx, "u1", enum.ProviderTelegram, func(p *models.SyncProgress) {})
	assert.ErrorIs(t, err, syncerrors.ErrProgressNotFound)

	config := models.SyncConfig{Provider: enum.ProviderTelegram, UserID: "u1", SyncType: enum.SyncTypeFull}
	_, err = coordinator.StartSync(ctx, config)
	require.NoError(t, err)

	// record expires on its own after an hour
	current = current.Add(progressTTL + time.Minute)

	_, err = coordinator.GetSyncProgress(ctx, "u1", enum.ProviderTelegram)
	assert.ErrorIs(t, err, syncerrors.ErrProgressNotFound)
}

func TestCompleteSync_SuccessPersistsTokenAndClearsProgress(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())

	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeFull}
	syncID, err := coordinator.StartSync(ctx, config)
	require.NoError(t, err)

	result := &models.SyncResult{
		Success:      true,
		ItemsSynced:  57,
		NewSyncToken: "history-4711",
		Duration:     3 * time.Second,
	}
	require.NoError(t, coordinator.CompleteSync(ctx, syncID, config, result))

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusCompleted, state.Status)
	assert.Equal(t, "history-4711", state.SyncToken)
	assert.NotNil(t, state.LastSyncAt)
	assert.Empty(t, state.LastError)

	_, err = coordinator.GetSyncProgress(ctx, "u1", enum.ProviderGmail)
	assert.ErrorIs(t, err, syncerrors.ErrProgressNotFound)
}

func TestCompleteSync_FailureKeepsPreviousToken(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())

	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeIncremental}
	require.NoError(t, coordinator.RecordSyncToken(ctx, "u1", enum.ProviderGmail, "history-100"))

	syncID, err := coordinator.StartSync(ctx, config)
	require.NoError(t, err)

	result := &models.SyncResult{
		Success: false,
		Errors:  []models.SyncError{{Message: "mailbox gone"}, {Message: "quota exceeded"}},
	}
	require.NoError(t, coordinator.CompleteSync(ctx, syncID, config, result))

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusFailed, state.Status)
	assert.Equal(t, "history-100", state.SyncToken, "failed run must not clobber the checkpoint")
	assert.Equal(t, "mailbox gone; quota exceeded", state.LastError)
}

func TestSyncToken_RoundTrip(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())

	token, err := coordinator.GetSyncToken(ctx, "u1", enum.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, coordinator.RecordSyncToken(ctx, "u1", enum.ProviderGoogleCalendar, "CPDAlvWDx70CEPDAlvWDx70CGAU="))

	token, err = coordinator.GetSyncToken(ctx, "u1", enum.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Equal(t, "CPDAlvWDx70CEPDAlvWDx70CGAU=", token)
}

func TestIsSyncNeeded(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())

	// never synced
	needed, err := coordinator.IsSyncNeeded(ctx, "u1", enum.ProviderGmail, time.Hour)
	require.NoError(t, err)
	assert.True(t, needed)

	// fresh sync
	recent := time.Now().Add(-10 * time.Minute)
	require.NoError(t, repo.SaveSyncState(ctx, &models.IntegrationSyncState{
		UserID:     "u1",
		Provider:   enum.ProviderGmail,
		Status:     enum.SyncStatusCompleted,
		LastSyncAt: &recent,
	}))
	needed, err = coordinator.IsSyncNeeded(ctx, "u1", enum.ProviderGmail, time.Hour)
	require.NoError(t, err)
	assert.False(t, needed)

	// stale sync
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, repo.SaveSyncState(ctx, &models.IntegrationSyncState{
		UserID:     "u1",
		Provider:   enum.ProviderGmail,
		Status:     enum.SyncStatusCompleted,
		LastSyncAt: &stale,
	}))
	needed, err = coordinator.IsSyncNeeded(ctx, "u1", enum.ProviderGmail, time.Hour)
	require.NoError(t, err)
	assert.True(t, needed)
}
