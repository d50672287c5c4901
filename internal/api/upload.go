package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

// Upload sends the full file payload in one multipart request and returns
// the created item. This is the finalize step of the upload pipeline — the
// transfer itself is a single atomic request regardless of size. parentID ""
// targets the conceptual root and is sent as the NullParent sentinel, since
// a form field cannot carry an absent value.
func (c *Client) Upload(
	ctx context.Context, cred, ownerID, parentID, name string, content io.Reader,
) (*Item, error) {
	c.logger.Info("uploading file",
		slog.String("name", name),
		slog.String("owner_id", ownerID),
		slog.String("parent_id", parentID),
	)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("api: creating multipart file field: %w", err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("api: buffering upload payload: %w", err)
	}

	if err := mw.WriteField("ownerId", ownerID); err != nil {
		return nil, fmt.Errorf("api: writing ownerId field: %w", err)
	}

	wireParent := parentID
	if wireParent == "" {
		wireParent = NullParent
	}

	if err := mw.WriteField("parentId", wireParent); err != nil {
		return nil, fmt.Errorf("api: writing parentId field: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("api: finalizing multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/drive/upload", mw.FormDataContentType(), &buf, cred)
	if err != nil {
		return nil, err
	}

	var raw itemResponse
	if err := decodeInto(resp, &raw, "upload"); err != nil {
		return nil, err
	}

	item := raw.toItem(c.logger)

	return &item, nil
}
