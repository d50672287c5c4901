package drive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/notify"
)

// fastOptions keeps the simulated phase near-instant for tests.
func fastOptions() UploaderOptions {
	return UploaderOptions{
		TickInterval:   time.Millisecond,
		TickIncrement:  30,
		FinalizeAt:     90,
		ProgressLinger: time.Millisecond,
	}
}

// progressRecorder collects published progress values.
type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) observe(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.values = append(p.values, v)
}

func (p *progressRecorder) all() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]int(nil), p.values...)
}

func newTestUploader(t *testing.T, fake *fakeDriveAPI, rec *recordingNotifier) (*Uploader, *Tree, *progressRecorder) {
	t.Helper()

	if rec == nil {
		rec = &recordingNotifier{}
	}

	tree := NewTree(fake, "u1", rec, quietLogger())
	uploader := NewUploader(fake, tree, fastOptions(), rec, quietLogger())

	progress := &progressRecorder{}
	uploader.SetProgressFunc(progress.observe)

	return uploader, tree, progress
}

func TestUploader_SuccessfulRun(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}
	rec := &recordingNotifier{}
	uploader, tree, progress := newTestUploader(t, fake, rec)

	started := uploader.Start(context.Background(), "tok", Payload{Name: "notes.txt", Content: []byte("hi")})
	require.True(t, started)

	uploader.Wait()

	assert.Equal(t, PhaseIdle, uploader.Phase(), "a finished job settles back to idle")
	assert.NoError(t, uploader.Err())
	assert.Equal(t, 1, fake.uploadCalls, "exactly one real request per upload")

	// The created item landed in the cache.
	item, ok := tree.Lookup("uploaded-1")
	require.True(t, ok)
	assert.Equal(t, "notes.txt", item.Name)

	values := progress.all()
	require.NotEmpty(t, values)

	// Simulated climb, then 100, then the clear.
	assert.Equal(t, 0, values[len(values)-1], "progress is cleared at the end")
	assert.Contains(t, values, 100, "completion shows 100%")

	for i := 1; i < len(values)-1; i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress never regresses mid-job")
	}

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "File uploaded successfully", last.Message)
}

func TestUploader_TargetsFolderActiveAtStart(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"f1": {},
		"f2": {},
	}}
	uploader, tree, _ := newTestUploader(t, fake, nil)

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "f1"))

	require.True(t, uploader.Start(context.Background(), "tok", Payload{Name: "a.txt"}))

	// Navigating away mid-job must not redirect the upload.
	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "f2"))

	uploader.Wait()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "f1", fake.uploadParent, "upload goes to the folder active when it began")
}

func TestUploader_SecondStartIgnoredWhileActive(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}
	uploader, _, _ := newTestUploader(t, fake, nil)

	require.True(t, uploader.Start(context.Background(), "tok", Payload{Name: "first.txt"}))
	assert.False(t, uploader.Start(context.Background(), "tok", Payload{Name: "second.txt"}),
		"a second selection during an active job is ignored")

	uploader.Wait()

	assert.Equal(t, 1, fake.uploadCalls)

	// Once idle again, a new job is accepted.
	require.True(t, uploader.Start(context.Background(), "tok", Payload{Name: "third.txt"}))
	uploader.Wait()

	assert.Equal(t, 2, fake.uploadCalls)
}

func TestUploader_FinalizeFailure(t *testing.T) {
	fake := &fakeDriveAPI{
		listings:  map[string][]api.Item{},
		uploadErr: &api.APIError{StatusCode: 400, Message: "File too large", Err: api.ErrBadRequest},
	}
	rec := &recordingNotifier{}
	uploader, tree, progress := newTestUploader(t, fake, rec)

	require.True(t, uploader.Start(context.Background(), "tok", Payload{Name: "big.bin"}))
	uploader.Wait()

	assert.Equal(t, PhaseIdle, uploader.Phase(), "a failed job still settles back to idle")
	assert.ErrorIs(t, uploader.Err(), api.ErrBadRequest)

	_, ok := tree.Lookup("uploaded-1")
	assert.False(t, ok, "nothing is inserted on failure")

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
	assert.Equal(t, "File too large", last.Message, "server rejection surfaces verbatim")

	values := progress.all()
	require.NotEmpty(t, values)
	assert.Equal(t, 0, values[len(values)-1])
	assert.NotContains(t, values, 100, "a failed upload never shows completion")
}

func TestUploader_NoRetryAfterFailure(t *testing.T) {
	fake := &fakeDriveAPI{
		listings:  map[string][]api.Item{},
		uploadErr: &api.APIError{StatusCode: 500, Err: api.ErrServerError},
	}
	uploader, _, _ := newTestUploader(t, fake, nil)

	require.True(t, uploader.Start(context.Background(), "tok", Payload{Name: "a.txt"}))
	uploader.Wait()

	assert.Equal(t, 1, fake.uploadCalls, "failures are terminal; no automatic retry")
}

func TestUploader_CancelDuringTicking(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}

	tree := NewTree(fake, "u1", notify.Nop{}, quietLogger())
	uploader := NewUploader(fake, tree, UploaderOptions{
		TickInterval:   50 * time.Millisecond,
		TickIncrement:  1, // slow climb, plenty of time to cancel
		FinalizeAt:     90,
		ProgressLinger: time.Millisecond,
	}, notify.Nop{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, uploader.Start(ctx, "tok", Payload{Name: "a.txt"}))
	cancel()
	uploader.Wait()

	assert.Equal(t, PhaseIdle, uploader.Phase())
	assert.Equal(t, 0, fake.uploadCalls, "canceling before the threshold skips the finalize request")
}

func TestUploader_WaitWithoutJob(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}
	uploader, _, _ := newTestUploader(t, fake, nil)

	uploader.Wait() // returns immediately
	assert.Equal(t, PhaseIdle, uploader.Phase())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "ticking", PhaseTicking.String())
	assert.Equal(t, "finalizing", PhaseFinalizing.String())
	assert.Equal(t, "done", PhaseDone.String())
	assert.Equal(t, "failed", PhaseFailed.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
