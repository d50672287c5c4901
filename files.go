package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/clouddrive/clouddrive-go/internal/api"
	"github.com/clouddrive/clouddrive-go/internal/drive"
)

// itemOutput is the JSON schema for `ls --json`.
type itemOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ParentID  string `json:"parent_id,omitempty"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type,omitempty"`
	CreatedAt string `json:"created_at"`
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List the contents of a folder (root when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().String("parent", "", "parent folder id (root when omitted)")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <item-id>",
		Short: "Delete a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}

	cmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPut,
	}

	cmd.Flags().String("parent", "", "destination folder id (root when omitted)")
	cmd.Flags().String("name", "", "remote name (defaults to the local file name)")

	return cmd
}

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <item-id>",
		Short: "Print a URL for viewing a file's content",
		Args:  cobra.ExactArgs(1),
		RunE:  runView,
	}

	cmd.Flags().String("parent", "", "folder id containing the item (root when omitted)")

	return cmd
}

// newTree builds a Tree for the authenticated owner, with console
// notifications wired through the hub.
func (a *app) newTree(ownerID string) *drive.Tree {
	return drive.NewTree(a.client, ownerID, a.notifier, a.logger)
}

// sortForDisplay orders items folders-first, then by locale-aware name
// comparison. Display-only: the cache itself keeps insertion order.
func sortForDisplay(items []api.Item) {
	coll := collate.New(language.Und, collate.IgnoreCase)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsFolder() != items[j].IsFolder() {
			return items[i].IsFolder()
		}

		return coll.CompareString(items[i].Name, items[j].Name) < 0
	})
}

func runLs(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	folderID := ""
	if len(args) == 1 {
		folderID = args[0]
	}

	tree := a.newTree(snap.Identity.ID)
	if err := tree.EnterFolder(ctx, snap.Credential, folderID); err != nil {
		return fmt.Errorf("listing folder: %w", err)
	}

	children := tree.CurrentChildren()
	sortForDisplay(children)

	if flagJSON {
		out := make([]itemOutput, 0, len(children))
		for _, item := range children {
			out = append(out, itemOutput{
				ID:        item.ID,
				Name:      item.Name,
				Kind:      string(item.Kind),
				ParentID:  item.ParentID,
				Size:      item.Size,
				MimeType:  item.MimeType,
				CreatedAt: item.CreatedAt.Format(time.RFC3339),
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if len(children) == 0 {
		statusf("(empty folder)\n")
		return nil
	}

	printItemTable(os.Stdout, children)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	parentID, err := cmd.Flags().GetString("parent")
	if err != nil {
		return err
	}

	tree := a.newTree(snap.Identity.ID)

	item, err := tree.CreateFolder(ctx, snap.Credential, args[0], parentID)
	if err != nil {
		return fmt.Errorf("creating folder: %w", err)
	}

	fmt.Println(item.ID)

	return nil
}

// confirmOnTerminal asks a y/N question on stderr and reads the answer from
// stdin. Anything but an explicit yes declines.
func confirmOnTerminal(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	confirm := func() bool {
		if force {
			return true
		}

		return confirmOnTerminal("Are you sure you want to delete this item?")
	}

	tree := a.newTree(snap.Identity.ID)
	if err := tree.DeleteItem(ctx, snap.Credential, args[0], confirm); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	parentID, err := cmd.Flags().GetString("parent")
	if err != nil {
		return err
	}

	remoteName, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading local file: %w", err)
	}

	if remoteName == "" {
		remoteName = filepath.Base(args[0])
	}

	tree := a.newTree(snap.Identity.ID)
	if parentID != "" {
		if err := tree.EnterFolder(ctx, snap.Credential, parentID); err != nil {
			return fmt.Errorf("opening destination folder: %w", err)
		}
	}

	uploader := drive.NewUploader(a.client, tree, a.uploaderOptions(), a.notifier, a.logger)
	uploader.SetProgressFunc(func(pct int) {
		if pct > 0 {
			statusf("\ruploading %s: %3d%%", remoteName, pct)
		}
	})

	if !uploader.Start(ctx, snap.Credential, drive.Payload{Name: remoteName, Content: content}) {
		return fmt.Errorf("an upload is already in progress")
	}

	uploader.Wait()
	statusf("\n")

	if err := uploader.Err(); err != nil {
		return fmt.Errorf("uploading %s: %w", remoteName, err)
	}

	return nil
}

func runView(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	parentID, err := cmd.Flags().GetString("parent")
	if err != nil {
		return err
	}

	tree := a.newTree(snap.Identity.ID)
	if err := tree.EnterFolder(ctx, snap.Credential, parentID); err != nil {
		return fmt.Errorf("loading folder: %w", err)
	}

	item, ok := tree.Lookup(args[0])
	if !ok {
		return fmt.Errorf("item %s not found in folder listing", args[0])
	}

	url, err := tree.ResolveViewURL(ctx, snap.Credential, item)
	if err != nil {
		return fmt.Errorf("resolving view url: %w", err)
	}

	fmt.Println(url)

	return nil
}
