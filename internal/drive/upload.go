package drive

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/notify"
)

// Phase is the upload job lifecycle state.
type Phase int

// Upload phases: idle -> ticking -> finalizing -> done|failed -> idle.
const (
	PhaseIdle Phase = iota
	PhaseTicking
	PhaseFinalizing
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTicking:
		return "ticking"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Payload is the file selected for upload.
type Payload struct {
	Name    string
	Content []byte
}

// UploaderOptions tune the simulated progress phase. Zero values fall back
// to the defaults the UI was designed around.
type UploaderOptions struct {
	TickInterval   time.Duration // default 200ms
	TickIncrement  int           // default 10
	FinalizeAt     int           // default 90
	ProgressLinger time.Duration // default 1s; how long 100% stays visible
}

func (o UploaderOptions) withDefaults() UploaderOptions {
	if o.TickInterval <= 0 {
		o.TickInterval = 200 * time.Millisecond
	}

	if o.TickIncrement <= 0 {
		o.TickIncrement = 10
	}

	if o.FinalizeAt <= 0 {
		o.FinalizeAt = 90
	}

	if o.ProgressLinger <= 0 {
		o.ProgressLinger = time.Second
	}

	return o
}

// Uploader drives one upload at a time from selection to cache insertion.
// The progress indicator is simulated: a local ticker advances it on a
// fixed schedule, decoupled from transfer bytes. Only once the simulated
// high-water mark is reached does the single real finalize request fire.
// The phase boundary between the two is explicit and must stay that way.
//
// A second Start while a job is active is a no-op — not an error, not
// queued. At most one progress ticker exists at any time.
type Uploader struct {
	client   API
	tree     *Tree
	notifier notify.Notifier
	logger   *slog.Logger
	opts     UploaderOptions

	// onProgress receives the displayed percentage; 0 means cleared.
	// Called without internal locks held.
	onProgress func(int)

	mu      sync.Mutex
	phase   Phase
	lastErr error         // outcome of the most recent job; nil on success
	done    chan struct{} // closed when the active job finishes; nil when idle
}

// NewUploader creates an idle Uploader that inserts completed uploads into
// tree.
func NewUploader(client API, tree *Tree, opts UploaderOptions, notifier notify.Notifier, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Uploader{
		client:   client,
		tree:     tree,
		notifier: notifier,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

// SetProgressFunc registers the progress observer. Must be called before
// Start.
func (u *Uploader) SetProgressFunc(f func(int)) {
	u.onProgress = f
}

// Phase returns the current job phase.
func (u *Uploader) Phase() Phase {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.phase
}

// Err returns the outcome of the most recent job: nil after success or
// cancellation, the finalize error after failure. Meaningful once Wait
// has returned.
func (u *Uploader) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.lastErr
}

// Start begins an upload targeting the tree's active folder. Returns false
// without side effects when a job is already active. The job runs in the
// background; use Wait to block until it settles.
func (u *Uploader) Start(ctx context.Context, cred string, payload Payload) bool {
	u.mu.Lock()

	if u.phase != PhaseIdle {
		u.mu.Unlock()
		u.logger.Info("upload already in progress, ignoring start",
			slog.String("name", payload.Name),
		)

		return false
	}

	u.phase = PhaseTicking
	u.lastErr = nil
	done := make(chan struct{})
	u.done = done
	u.mu.Unlock()

	parentID := u.tree.ActiveFolder()

	go func() {
		defer close(done)
		u.run(ctx, cred, parentID, payload)
	}()

	return true
}

// Wait blocks until the active job settles back to idle. Returns
// immediately when no job is active.
func (u *Uploader) Wait() {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()

	if done != nil {
		<-done
	}
}

// run executes the two phases: simulated ticking, then the one real
// finalize call.
func (u *Uploader) run(ctx context.Context, cred, parentID string, payload Payload) {
	if !u.tickProgress(ctx) {
		u.settle(PhaseIdle, 0)
		return
	}

	u.setPhase(PhaseFinalizing)

	item, err := u.client.Upload(ctx, cred, u.tree.Owner(), parentID, payload.Name, bytes.NewReader(payload.Content))
	if err != nil {
		u.logger.Warn("upload finalize failed",
			slog.String("name", payload.Name),
			slog.String("error", err.Error()),
		)

		u.setPhase(PhaseFailed)
		u.mu.Lock()
		u.lastErr = err
		u.mu.Unlock()
		u.notifier.Error(api.UserMessage(err, "Upload failed"))
		u.settle(PhaseIdle, 0)

		return
	}

	u.setPhase(PhaseDone)
	u.tree.Append(*item)
	u.notifier.Success("File uploaded successfully")
	u.publish(100)

	// Keep 100% visible briefly, then clear.
	linger := time.NewTimer(u.opts.ProgressLinger)
	defer linger.Stop()

	select {
	case <-ctx.Done():
	case <-linger.C:
	}

	u.settle(PhaseIdle, 0)
}

// tickProgress advances the simulated indicator until the finalize
// threshold. Returns false if the context was canceled first.
func (u *Uploader) tickProgress(ctx context.Context) bool {
	ticker := time.NewTicker(u.opts.TickInterval)
	defer ticker.Stop()

	progress := 0

	for progress < u.opts.FinalizeAt {
		select {
		case <-ctx.Done():
			u.logger.Debug("upload canceled during ticking phase")
			return false
		case <-ticker.C:
			progress += u.opts.TickIncrement
			u.publish(progress)
		}
	}

	return true
}

func (u *Uploader) setPhase(p Phase) {
	u.mu.Lock()
	u.phase = p
	u.mu.Unlock()
}

// settle moves the job to its terminal phase and publishes the final
// progress value.
func (u *Uploader) settle(p Phase, progress int) {
	u.mu.Lock()
	u.phase = p
	if p == PhaseIdle {
		u.done = nil
	}
	u.mu.Unlock()

	u.publish(progress)
}

func (u *Uploader) publish(progress int) {
	if u.onProgress != nil {
		u.onProgress(progress)
	}
}
