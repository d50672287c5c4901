package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// NullParent is the wire sentinel meaning "no parent" in transports that
// cannot carry an absent value (multipart form fields). The client-side
// representation of the conceptual root is always the empty string.
const NullParent = "null"

// Timestamp validation bounds — timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// itemResponse mirrors the drive endpoints' item JSON exactly.
// Unexported — callers use Item via toItem() normalization.
type itemResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	ParentID  *string `json:"parentId"`
	OwnerID   string  `json:"ownerId"`
	Size      int64   `json:"size"`
	MimeType  string  `json:"mimeType"`
	CreatedAt string  `json:"createdAt"`
	S3URL     string  `json:"s3Url"`
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
	OwnerID  string  `json:"ownerId"`
}

type viewURLResponse struct {
	URL string `json:"url"`
}

// toItem normalizes a wire item into our Item type. Absent or literal-"null"
// parent ids collapse to "", the client-side root marker.
func (r *itemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:         r.ID,
		Name:       r.Name,
		Kind:       normalizeKind(r.Type),
		OwnerID:    r.OwnerID,
		Size:       r.Size,
		MimeType:   r.MimeType,
		ContentRef: r.S3URL,
	}

	if r.ParentID != nil && *r.ParentID != NullParent {
		item.ParentID = *r.ParentID
	}

	item.CreatedAt = parseTimestamp(r.CreatedAt, r.ID, logger)

	return item
}

// normalizeKind maps a wire type string to a Kind, defaulting to KindOther.
func normalizeKind(raw string) Kind {
	switch Kind(raw) {
	case KindFolder, KindImage, KindPDF, KindDoc, KindOther:
		return Kind(raw)
	default:
		return KindOther
	}
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty timestamp, using current time", slog.String("item_id", itemID))

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// ListItems returns the items in the given folder, scoped to one owner.
// parentID "" lists the conceptual root — the parentId query parameter is
// omitted entirely in that case.
func (c *Client) ListItems(ctx context.Context, cred, ownerID, parentID string) ([]Item, error) {
	c.logger.Info("listing items",
		slog.String("owner_id", ownerID),
		slog.String("parent_id", parentID),
	)

	q := url.Values{}
	q.Set("ownerId", ownerID)

	if parentID != "" {
		q.Set("parentId", parentID)
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/drive?"+q.Encode(), "", nil, cred)
	if err != nil {
		return nil, err
	}

	var raw []itemResponse
	if err := decodeInto(resp, &raw, "list items"); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(raw))
	for i := range raw {
		items = append(items, raw[i].toItem(c.logger))
	}

	c.logger.Debug("listed items", slog.Int("count", len(items)))

	return items, nil
}

// CreateFolder creates a folder under the given parent. parentID "" creates
// at the conceptual root (JSON null on the wire).
func (c *Client) CreateFolder(ctx context.Context, cred, name, parentID, ownerID string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("name", name),
		slog.String("parent_id", parentID),
		slog.String("owner_id", ownerID),
	)

	req := createFolderRequest{Name: name, OwnerID: ownerID}
	if parentID != "" {
		req.ParentID = &parentID
	}

	resp, err := c.postJSON(ctx, "/api/drive/folder", req, cred)
	if err != nil {
		return nil, err
	}

	var raw itemResponse
	if err := decodeInto(resp, &raw, "create folder"); err != nil {
		return nil, err
	}

	item := raw.toItem(c.logger)

	return &item, nil
}

// DeleteItem deletes a drive item by id. Whether the server cascades to
// descendants is its own concern — the client only observes the one id.
func (c *Client) DeleteItem(ctx context.Context, cred, itemID string) error {
	c.logger.Info("deleting item", slog.String("item_id", itemID))

	resp, err := c.do(ctx, http.MethodDelete, "/api/drive/"+url.PathEscape(itemID), "", nil, cred)
	if err != nil {
		return err
	}

	return drainAndClose(resp)
}

// ViewURL requests a short-lived signed access URL for a stored file.
func (c *Client) ViewURL(ctx context.Context, cred, itemID string) (string, error) {
	c.logger.Info("requesting view url", slog.String("item_id", itemID))

	path := fmt.Sprintf("/api/drive/file/%s/view", url.PathEscape(itemID))

	resp, err := c.do(ctx, http.MethodGet, path, "", nil, cred)
	if err != nil {
		return "", err
	}

	var vr viewURLResponse
	if err := decodeInto(resp, &vr, "view url"); err != nil {
		return "", err
	}

	return vr.URL, nil
}
