package sync

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/kv"
	"github.com/lumiohq/syncstack/internal/models"
)

// fakeWorker scripts FullSync and IncrementalSync outcomes and records what
// the runner asked of it.
type fakeWorker struct {
	provider enum.Provider

	fullResult  *models.SyncResult
	fullErr     error
	incrResult  *models.SyncResult
	incrErr     error

	fullCalls  int
	incrCalls  int
	incrTokens []string
}

func (w *fakeWorker) Provider() enum.Provider {
	return w.provider
}

func (w *fakeWorker) FullSync(_ context.Context, _ models.SyncConfig) (*models.SyncResult, error) {
	w.fullCalls++
	return w.fullResult, w.fullErr
}

func (w *fakeWorker) IncrementalSync(_ context.Context, _ models.SyncConfig, syncToken string) (*models.SyncResult, error) {
	w.incrCalls++
	w.incrTokens = append(w.incrTokens, syncToken)
	return w.incrResult, w.incrErr
}

func TestRunner_FullSyncHappyPath(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	worker := &fakeWorker{
		provider:   enum.ProviderGmail,
		fullResult: &models.SyncResult{Success: true, ItemsSynced: 12, NewSyncToken: "history-12"},
	}
	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeFull}

	result, err := runner.Run(ctx, worker, config, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, worker.fullCalls)
	assert.Equal(t, 0, worker.incrCalls)

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusCompleted, state.Status)
	assert.Equal(t, "history-12", state.SyncToken)
}

func TestRunner_IncrementalUsesRecordedToken(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	require.NoError(t, coordinator.RecordSyncToken(ctx, "u1", enum.ProviderGmail, "history-900"))

	worker := &fakeWorker{
		provider:   enum.ProviderGmail,
		incrResult: &models.SyncResult{Success: true, ItemsSynced: 3, NewSyncToken: "history-903"},
	}
	// the token a caller smuggles in must be ignored in favor of the
	// durably recorded one
	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeIncremental, SyncToken: "stale-webhook-token"}

	result, err := runner.Run(ctx, worker, config, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Equal(t, 1, worker.incrCalls)
	assert.Equal(t, []string{"history-900"}, worker.incrTokens)

	token, err := coordinator.GetSyncToken(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, "history-903", token)
}

func TestRunner_IncrementalWithoutTokenRunsFull(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	worker := &fakeWorker{
		provider:   enum.ProviderGoogleCalendar,
		fullResult: &models.SyncResult{Success: true, ItemsSynced: 40, NewSyncToken: "ct-1"},
	}
	config := models.SyncConfig{Provider: enum.ProviderGoogleCalendar, UserID: "u1", SyncType: enum.SyncTypeIncremental}

	_, err := runner.Run(ctx, worker, config, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, worker.fullCalls)
	assert.Equal(t, 0, worker.incrCalls, "no recorded token means full sync, not incremental with empty token")
}

func TestRunner_InvalidCheckpointFallsBackToFullOnce(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	require.NoError(t, coordinator.RecordSyncToken(ctx, "u1", enum.ProviderGoogleCalendar, "ct-expired"))

	worker := &fakeWorker{
		provider:   enum.ProviderGoogleCalendar,
		incrErr:    syncerrors.ErrInvalidCheckpoint,
		fullResult: &models.SyncResult{Success: true, ItemsSynced: 200, NewSyncToken: "ct-fresh"},
	}
	config := models.SyncConfig{Provider: enum.ProviderGoogleCalendar, UserID: "u1", SyncType: enum.SyncTypeIncremental}

	result, err := runner.Run(ctx, worker, config, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, worker.incrCalls)
	assert.Equal(t, 1, worker.fullCalls, "exactly one full-sync fallback")

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusCompleted, state.Status)
	assert.Equal(t, "ct-fresh", state.SyncToken)
}

func TestRunner_FallbackFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	require.NoError(t, coordinator.RecordSyncToken(ctx, "u1", enum.ProviderGmail, "history-1"))

	worker := &fakeWorker{
		provider: enum.ProviderGmail,
		incrErr:  syncerrors.ErrInvalidCheckpoint,
		fullErr:  errors.New("mailbox unavailable"),
	}
	config := models.SyncConfig{Provider: enum.ProviderGmail, UserID: "u1", SyncType: enum.SyncTypeIncremental}

	result, err := runner.Run(ctx, worker, config, time.Minute)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, 1, worker.fullCalls, "the fallback is not itself retried")

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusFailed, state.Status)
}

func TestRunner_WorkerFailureMarksFailedAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	coordinator, repo := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	worker := &fakeWorker{
		provider: enum.ProviderSlack,
		fullErr:  errors.New("channel list failed"),
	}
	config := models.SyncConfig{Provider: enum.ProviderSlack, UserID: "u1", SyncType: enum.SyncTypeFull}

	_, err := runner.Run(ctx, worker, config, time.Minute)
	require.Error(t, err)

	state, err := repo.GetSyncState(ctx, "u1", enum.ProviderSlack)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusFailed, state.Status)
	assert.Contains(t, state.LastError, "channel list failed")

	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderSlack, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "lock must be released after a failed run")
}

func TestRunner_LockContentionSkipsWorker(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(kv.NewMemoryStore())
	runner := NewRunner(coordinator, getLogger())

	acquired, err := coordinator.AcquireSyncLock(ctx, "u1", enum.ProviderTwilio, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	worker := &fakeWorker{
		provider:   enum.ProviderTwilio,
		fullResult: &models.SyncResult{Success: true},
	}
	config := models.SyncConfig{Provider: enum.ProviderTwilio, UserID: "u1", SyncType: enum.SyncTypeFull}

	_, err = runner.Run(ctx, worker, config, time.Minute)
	assert.ErrorIs(t, err, syncerrors.ErrLockContention)
	assert.Equal(t, 0, worker.fullCalls)
	assert.Equal(t, 0, worker.incrCalls)
}
