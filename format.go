package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/clouddrive/clouddrive-go/internal/api"
)

// formatSize renders a byte count for table output. Folders have no size.
func formatSize(item api.Item) string {
	if item.IsFolder() {
		return "-"
	}

	return humanize.IBytes(uint64(item.Size))
}

// formatWhen renders a timestamp relative to now ("3 days ago").
func formatWhen(item api.Item) string {
	return humanize.Time(item.CreatedAt)
}

// printItemTable writes an aligned listing to w.
func printItemTable(w io.Writer, items []api.Item) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tKIND\tSIZE\tCREATED\tNAME")

	for _, item := range items {
		name := item.Name
		if item.IsFolder() {
			name += "/"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Kind, formatSize(item), formatWhen(item), name)
	}

	tw.Flush()
}
