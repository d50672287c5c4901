package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/notify"
)

// fakeDriveAPI is a controllable API for tree and uploader tests. Listings
// are keyed by parent id; a hold channel can delay ListItems to exercise
// out-of-order completion.
type fakeDriveAPI struct {
	mu           sync.Mutex
	listings     map[string][]api.Item
	listErr      error
	listHold     chan struct{} // when set, ListItems blocks until closed
	created      *api.Item
	createErr    error
	deleteErr    error
	deleted      []string
	viewURL      string
	viewErr      error
	uploaded     *api.Item
	uploadErr    error
	uploadCalls  int
	uploadParent string
}

func (f *fakeDriveAPI) ListItems(_ context.Context, _, _, parentID string) ([]api.Item, error) {
	f.mu.Lock()
	hold := f.listHold
	err := f.listErr
	items := append([]api.Item(nil), f.listings[parentID]...)
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}

	if err != nil {
		return nil, err
	}

	return items, nil
}

func (f *fakeDriveAPI) CreateFolder(_ context.Context, _, name, parentID, ownerID string) (*api.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	if f.created != nil {
		return f.created, nil
	}

	return &api.Item{ID: "new-folder", Name: name, Kind: api.KindFolder, ParentID: parentID, OwnerID: ownerID}, nil
}

func (f *fakeDriveAPI) DeleteItem(_ context.Context, _, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.deleted = append(f.deleted, itemID)

	return nil
}

func (f *fakeDriveAPI) ViewURL(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.viewURL, f.viewErr
}

func (f *fakeDriveAPI) Upload(_ context.Context, _, ownerID, parentID, name string, _ io.Reader) (*api.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadCalls++
	f.uploadParent = parentID

	if f.uploadErr != nil {
		return nil, f.uploadErr
	}

	if f.uploaded != nil {
		return f.uploaded, nil
	}

	return &api.Item{ID: "uploaded-1", Name: name, Kind: api.KindDoc, ParentID: parentID, OwnerID: ownerID}, nil
}

// recordingNotifier captures emitted notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Notification
}

func (r *recordingNotifier) Success(msg string) { r.record(notify.LevelSuccess, msg) }
func (r *recordingNotifier) Error(msg string)   { r.record(notify.LevelError, msg) }
func (r *recordingNotifier) Info(msg string)    { r.record(notify.LevelInfo, msg) }

func (r *recordingNotifier) record(level notify.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, notify.Notification{Level: level, Message: msg})
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]notify.Notification(nil), r.messages...)
}

func (r *recordingNotifier) last() (notify.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.messages) == 0 {
		return notify.Notification{}, false
	}

	return r.messages[len(r.messages)-1], true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func folder(id, name, parentID string) api.Item {
	return api.Item{ID: id, Name: name, Kind: api.KindFolder, ParentID: parentID, OwnerID: "u1"}
}

func file(id, name, parentID string) api.Item {
	return api.Item{ID: id, Name: name, Kind: api.KindDoc, ParentID: parentID, OwnerID: "u1", ContentRef: "https://bucket/" + id}
}

func TestEnterFolder_ReplacesCache(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"":   {folder("f1", "Photos", ""), file("i1", "root.txt", "")},
		"f1": {file("i2", "cat.png", "f1")},
	}}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))
	assert.Equal(t, "", tree.ActiveFolder())

	children := tree.CurrentChildren()
	require.Len(t, children, 2)
	assert.Equal(t, "f1", children[0].ID)
	assert.Equal(t, "i1", children[1].ID)

	// Descending replaces the cache wholesale.
	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "f1"))
	assert.Equal(t, "f1", tree.ActiveFolder())

	children = tree.CurrentChildren()
	require.Len(t, children, 1)
	assert.Equal(t, "i2", children[0].ID)

	_, ok := tree.Lookup("i1")
	assert.False(t, ok, "previous folder's items are gone after replacement")
}

func TestEnterFolder_FailureKeepsCacheAndCursor(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"": {file("i1", "root.txt", "")},
	}}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	fake.mu.Lock()
	fake.listErr = errors.New("boom")
	fake.mu.Unlock()

	err := tree.EnterFolder(context.Background(), "tok", "f1")
	require.Error(t, err)

	// The cursor already moved; the old content survives.
	assert.Equal(t, "f1", tree.ActiveFolder())

	_, ok := tree.Lookup("i1")
	assert.True(t, ok, "failed listing must not clobber the cache")

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "Failed to load files", last.Message)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestEnterFolder_StaleListingDiscarded(t *testing.T) {
	hold := make(chan struct{})
	fake := &fakeDriveAPI{
		listHold: hold,
		listings: map[string][]api.Item{
			"slow": {file("stale-1", "old.txt", "slow")},
			"fast": {file("fresh-1", "new.txt", "fast")},
		},
	}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- tree.EnterFolder(context.Background(), "tok", "slow")
	}()

	// Wait for the first navigation to take the cursor, then supersede it.
	deadline := time.Now().Add(2 * time.Second)
	for tree.ActiveFolder() != "slow" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, "slow", tree.ActiveFolder())

	fake.mu.Lock()
	fake.listHold = nil
	fake.mu.Unlock()

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "fast"))

	// Release the superseded listing and let it complete.
	close(hold)
	require.NoError(t, <-firstDone)

	// The newer navigation's content must win.
	assert.Equal(t, "fast", tree.ActiveFolder())

	_, ok := tree.Lookup("fresh-1")
	assert.True(t, ok)

	_, ok = tree.Lookup("stale-1")
	assert.False(t, ok, "superseded listing must be discarded")
}

func TestBreadcrumbs(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	assert.Empty(t, tree.Breadcrumbs(), "root has no trail")

	// Seed a cached ancestor chain, as navigation would.
	tree.Append(folder("a", "Top", ""))
	tree.Append(folder("b", "Mid", "a"))
	tree.Append(folder("c", "Leaf", "b"))

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "c"))

	// EnterFolder replaced the cache; re-seed and check the walk.
	tree.Append(folder("a", "Top", ""))
	tree.Append(folder("b", "Mid", "a"))
	tree.Append(folder("c", "Leaf", "b"))

	trail := tree.Breadcrumbs()
	require.Len(t, trail, 3)
	assert.Equal(t, []string{"Top", "Mid", "Leaf"}, []string{trail[0].Name, trail[1].Name, trail[2].Name})
}

func TestBreadcrumbs_TruncatedAtUncachedAncestor(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "c"))

	// Only the active folder is cached; its parent chain is unknown.
	tree.Append(folder("c", "Leaf", "b"))

	trail := tree.Breadcrumbs()
	require.Len(t, trail, 1)
	assert.Equal(t, "Leaf", trail[0].Name)
}

func TestCreateFolder(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{}}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	item, err := tree.CreateFolder(context.Background(), "tok", "Documents", "")
	require.NoError(t, err)
	assert.Equal(t, "Documents", item.Name)

	cached, ok := tree.Lookup(item.ID)
	assert.True(t, ok)
	assert.Equal(t, "Documents", cached.Name)

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "Folder created successfully", last.Message)
}

func TestCreateFolder_EmptyNameRejectedBeforeNetwork(t *testing.T) {
	fake := &fakeDriveAPI{createErr: errors.New("should never be reached")}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	_, err := tree.CreateFolder(context.Background(), "tok", "", "")
	require.ErrorIs(t, err, ErrEmptyName)

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestCreateFolder_ServerMessageSurfaced(t *testing.T) {
	fake := &fakeDriveAPI{createErr: &api.APIError{StatusCode: 409, Message: "Folder already exists", Err: api.ErrConflict}}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	_, err := tree.CreateFolder(context.Background(), "tok", "Documents", "")
	require.Error(t, err)

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "Folder already exists", last.Message, "server rejections surface verbatim")
}

func TestDeleteItem(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"": {file("i1", "a.txt", ""), file("i2", "b.txt", "")},
	}}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	confirmed := false
	err := tree.DeleteItem(context.Background(), "tok", "i1", func() bool {
		confirmed = true
		return true
	})
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, []string{"i1"}, fake.deleted)

	_, ok := tree.Lookup("i1")
	assert.False(t, ok)

	_, ok = tree.Lookup("i2")
	assert.True(t, ok, "only the deleted id leaves the cache")

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "Item deleted", last.Message)
}

func TestDeleteItem_DeclinedConfirmAborts(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"": {file("i1", "a.txt", "")},
	}}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	require.NoError(t, tree.DeleteItem(context.Background(), "tok", "i1", func() bool { return false }))
	assert.Empty(t, fake.deleted, "declined confirmation must not reach the server")

	_, ok := tree.Lookup("i1")
	assert.True(t, ok)
}

func TestDeleteItem_FailureKeepsCache(t *testing.T) {
	fake := &fakeDriveAPI{
		listings:  map[string][]api.Item{"": {file("i1", "a.txt", "")}},
		deleteErr: &api.APIError{StatusCode: 500, Err: api.ErrServerError},
	}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	err := tree.DeleteItem(context.Background(), "tok", "i1", nil)
	require.Error(t, err)

	_, ok := tree.Lookup("i1")
	assert.True(t, ok, "failed deletion leaves the cache untouched")

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "Could not delete item", last.Message)
}

func TestResolveViewURL(t *testing.T) {
	fake := &fakeDriveAPI{viewURL: "https://bucket/signed?sig=abc"}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	url, err := tree.ResolveViewURL(context.Background(), "tok", file("i1", "a.txt", ""))
	require.NoError(t, err)
	assert.Equal(t, "https://bucket/signed?sig=abc", url)
}

func TestResolveViewURL_FallsBackToStoredLocator(t *testing.T) {
	fake := &fakeDriveAPI{viewErr: errors.New("boom")}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	item := file("i1", "a.txt", "")

	url, err := tree.ResolveViewURL(context.Background(), "tok", item)
	require.NoError(t, err)
	assert.Equal(t, item.ContentRef, url)
}

func TestResolveViewURL_RejectsFoldersAndEmptyContent(t *testing.T) {
	fake := &fakeDriveAPI{}
	rec := &recordingNotifier{}
	tree := NewTree(fake, "u1", rec, quietLogger())

	_, err := tree.ResolveViewURL(context.Background(), "tok", folder("f1", "Photos", ""))
	assert.ErrorIs(t, err, ErrNoContent)

	noContent := api.Item{ID: "i1", Name: "hollow.txt", Kind: api.KindDoc}

	_, err = tree.ResolveViewURL(context.Background(), "tok", noContent)
	assert.ErrorIs(t, err, ErrNoContent)

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "File URL not available", last.Message)
}

// TestNavigationWalkthrough drives a fresh tree through a root listing and
// one descent, checking children and the breadcrumb trail at each step.
func TestNavigationWalkthrough(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"":   {folder("f1", "Photos", "")},
		"f1": {},
	}}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	children := tree.CurrentChildren()
	require.Len(t, children, 1)
	assert.Equal(t, "f1", children[0].ID)
	assert.Empty(t, tree.Breadcrumbs(), "root shows no trail")

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "f1"))
	assert.Empty(t, tree.CurrentChildren(), "empty folder lists nothing")

	// The descent replaced the cache, so f1 itself is no longer cached and
	// the trail comes back truncated. Resolvable-ancestors-only is the
	// documented behavior.
	assert.Empty(t, tree.Breadcrumbs())

	// Re-listing the root restores the trail's raw material.
	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))
	require.NoError(t, tree.EnterFolder(context.Background(), "tok", "f1"))
	tree.Append(folder("f1", "Photos", ""))

	trail := tree.Breadcrumbs()
	require.Len(t, trail, 1)
	assert.Equal(t, "f1", trail[0].ID)
}

func TestAppend_ReplacesInPlace(t *testing.T) {
	fake := &fakeDriveAPI{listings: map[string][]api.Item{
		"": {file("i1", "a.txt", ""), file("i2", "b.txt", "")},
	}}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	renamed := file("i1", "renamed.txt", "")
	tree.Append(renamed)

	children := tree.CurrentChildren()
	require.Len(t, children, 2)
	assert.Equal(t, "renamed.txt", children[0].Name, "replacement keeps the original position")
	assert.Equal(t, "i2", children[1].ID)
}

func TestCurrentChildren_InsertionOrderStable(t *testing.T) {
	listing := make([]api.Item, 0, 10)
	for i := 0; i < 10; i++ {
		listing = append(listing, file(fmt.Sprintf("i%d", i), fmt.Sprintf("f%d.txt", i), ""))
	}

	fake := &fakeDriveAPI{listings: map[string][]api.Item{"": listing}}
	tree := NewTree(fake, "u1", &recordingNotifier{}, quietLogger())

	require.NoError(t, tree.EnterFolder(context.Background(), "tok", ""))

	tree.Append(file("i99", "appended.txt", ""))

	children := tree.CurrentChildren()
	require.Len(t, children, 11)

	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("i%d", i), children[i].ID)
	}

	assert.Equal(t, "i99", children[10].ID, "appends land at the end")
}
