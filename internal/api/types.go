package api

import "time"

// Kind classifies a drive item. The server assigns the kind; unknown wire
// values normalize to KindOther.
type Kind string

// Item kinds recognized by the service.
const (
	KindFolder Kind = "folder"
	KindImage  Kind = "image"
	KindPDF    Kind = "pdf"
	KindDoc    Kind = "doc"
	KindOther  Kind = "other"
)

// Identity is the authenticated user record returned by the auth endpoints.
// RootFolderID designates the owner's top-level folder; "" means the
// conceptual root.
type Identity struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	IsActive     bool
	RootFolderID string
}

// DisplayName returns the user-facing name for notifications and headers.
func (i *Identity) DisplayName() string {
	if i.LastName == "" {
		return i.FirstName
	}

	return i.FirstName + " " + i.LastName
}

// Item is a drive item (folder or file). Fields are normalized from the
// wire response — callers never see raw API data. ParentID "" means the
// item lives at the conceptual root. IDs are assigned by the server,
// never by the client.
type Item struct {
	ID         string
	Name       string
	Kind       Kind
	ParentID   string
	OwnerID    string
	Size       int64
	MimeType   string
	CreatedAt  time.Time
	ContentRef string // stored object locator; ephemeral view URLs are requested per use
}

// IsFolder reports whether the item is a folder.
func (it *Item) IsFolder() bool {
	return it.Kind == KindFolder
}
