// Package drive maintains the client-side view of one owner's items: a
// folder-scoped cache with optimistic navigation, breadcrumb derivation
// from flat parent pointers, and a single-job upload pipeline. The cache
// holds only what navigation has fetched — never the whole forest — and is
// never reconciled against the server on a timer.
package drive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/notify"
)

// API is the slice of the collaborator the drive layer needs.
type API interface {
	ListItems(ctx context.Context, cred, ownerID, parentID string) ([]api.Item, error)
	CreateFolder(ctx context.Context, cred, name, parentID, ownerID string) (*api.Item, error)
	DeleteItem(ctx context.Context, cred, itemID string) error
	ViewURL(ctx context.Context, cred, itemID string) (string, error)
	Upload(ctx context.Context, cred, ownerID, parentID, name string, content io.Reader) (*api.Item, error)
}

// Validation sentinels, rejected before any network call.
var (
	ErrEmptyName = errors.New("drive: folder name must not be empty")
	ErrNoContent = errors.New("drive: item has no stored content")
)

// Tree is the navigable cache of one owner's drive items. The active folder
// cursor identifies the folder being browsed; "" is the conceptual root.
// Mutations are keyed by item id, so out-of-order completions are harmless —
// except whole-cache replacement on navigation, which is guarded by a
// per-request token (a listing that resolves after the user has navigated
// elsewhere is discarded).
type Tree struct {
	client   API
	ownerID  string
	notifier notify.Notifier
	logger   *slog.Logger

	// newToken issues listing request tokens. Tests override for determinism.
	newToken func() string

	mu        sync.Mutex
	items     map[string]api.Item
	order     []string // insertion order of item ids; no implied sort
	cursor    string   // active folder id, "" = root
	listToken string   // token owning the right to replace the cache
}

// NewTree creates an empty Tree scoped to ownerID.
func NewTree(client API, ownerID string, notifier notify.Notifier, logger *slog.Logger) *Tree {
	if logger == nil {
		logger = slog.Default()
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Tree{
		client:   client,
		ownerID:  ownerID,
		notifier: notifier,
		logger:   logger,
		newToken: uuid.NewString,
		items:    make(map[string]api.Item),
	}
}

// Owner returns the owner id the tree is scoped to.
func (t *Tree) Owner() string {
	return t.ownerID
}

// ActiveFolder returns the active folder cursor ("" = root).
func (t *Tree) ActiveFolder() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cursor
}

// EnterFolder moves the cursor to folderID and fetches that folder's
// listing. The cursor moves immediately (navigation is optimistic about the
// cursor, pessimistic about content); the cache is replaced only when the
// response belongs to the most recent navigation. On failure the cache is
// left unchanged and an error notification is emitted.
func (t *Tree) EnterFolder(ctx context.Context, cred, folderID string) error {
	t.mu.Lock()
	t.cursor = folderID
	token := t.newToken()
	t.listToken = token
	t.mu.Unlock()

	items, err := t.client.ListItems(ctx, cred, t.ownerID, folderID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listToken != token {
		// A newer navigation owns the cache now; this response is stale.
		t.logger.Debug("discarding stale folder listing",
			slog.String("folder_id", folderID),
		)

		return nil
	}

	if err != nil {
		t.logger.Warn("folder listing failed",
			slog.String("folder_id", folderID),
			slog.String("error", err.Error()),
		)
		t.notifier.Error("Failed to load files")

		return err
	}

	t.items = make(map[string]api.Item, len(items))
	t.order = t.order[:0]

	for i := range items {
		t.items[items[i].ID] = items[i]
		t.order = append(t.order, items[i].ID)
	}

	t.logger.Debug("entered folder",
		slog.String("folder_id", folderID),
		slog.Int("item_count", len(items)),
	)

	return nil
}

// CurrentChildren returns the cached items whose parent is the active
// folder, in cache insertion order. Ordering stays stable across optimistic
// appends.
func (t *Tree) CurrentChildren() []api.Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	children := make([]api.Item, 0, len(t.order))

	for _, id := range t.order {
		if item, ok := t.items[id]; ok && item.ParentID == t.cursor {
			children = append(children, item)
		}
	}

	return children
}

// Breadcrumbs walks the active folder's parent chain through the cache and
// returns the resolvable ancestor folders, outermost first, ending with the
// active folder itself. The walk stops at the first id not present in the
// cache, so the trail covers only ancestors encountered during navigation —
// it may be truncated after the cache was replaced.
func (t *Tree) Breadcrumbs() []api.Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	var trail []api.Item

	for id := t.cursor; id != ""; {
		item, ok := t.items[id]
		if !ok {
			break
		}

		trail = append([]api.Item{item}, trail...)
		id = item.ParentID
	}

	return trail
}

// Lookup returns the cached item with the given id.
func (t *Tree) Lookup(id string) (api.Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[id]

	return item, ok
}

// CreateFolder creates a folder under parentID ("" = root). An empty name
// aborts before any network call. On success the created item is appended
// to the cache; on failure the cache is untouched.
func (t *Tree) CreateFolder(ctx context.Context, cred, name, parentID string) (*api.Item, error) {
	if name == "" {
		t.notifier.Error("Folder name must not be empty")

		return nil, ErrEmptyName
	}

	item, err := t.client.CreateFolder(ctx, cred, name, parentID, t.ownerID)
	if err != nil {
		t.notifier.Error(api.UserMessage(err, "Could not create folder"))

		return nil, err
	}

	t.Append(*item)
	t.notifier.Success("Folder created successfully")

	return item, nil
}

// DeleteItem removes an item, gated on the confirm callback (deletion is
// destructive and irreversible). On success only the one id leaves the
// cache — descendants are not cascaded client-side; whether the server
// cascades is its contract. On failure the cache is unchanged.
func (t *Tree) DeleteItem(ctx context.Context, cred, id string, confirm func() bool) error {
	if confirm != nil && !confirm() {
		return nil
	}

	if err := t.client.DeleteItem(ctx, cred, id); err != nil {
		t.notifier.Error(api.UserMessage(err, "Could not delete item"))

		return err
	}

	t.mu.Lock()
	if _, ok := t.items[id]; ok {
		delete(t.items, id)

		for i, oid := range t.order {
			if oid == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()

	t.notifier.Success("Item deleted")

	return nil
}

// ResolveViewURL returns a URL for viewing a file's content: a short-lived
// signed URL when the server grants one, else the raw stored locator as a
// best-effort fallback. Folders and items without content are rejected
// before any network call.
func (t *Tree) ResolveViewURL(ctx context.Context, cred string, item api.Item) (string, error) {
	if item.IsFolder() || item.ContentRef == "" {
		t.notifier.Error("File URL not available")

		return "", ErrNoContent
	}

	signed, err := t.client.ViewURL(ctx, cred, item.ID)
	if err != nil {
		t.logger.Warn("signed url request failed, falling back to stored locator",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)

		return item.ContentRef, nil
	}

	return signed, nil
}

// Append inserts an item into the cache, or replaces it in place when the
// id is already present. This is the upload pipeline's only mutation path.
func (t *Tree) Append(item api.Item) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[item.ID]; !ok {
		t.order = append(t.order, item.ID)
	}

	t.items[item.ID] = item
}
