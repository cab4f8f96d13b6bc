// Package render provides console rendering for repository listings and
// discovery results. Tables adapt to the current terminal width.
package render

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/tranthanhman/AstroCM/pkg/repository"
)

// ConsoleRenderer writes terminal-friendly tables.
type ConsoleRenderer struct {
	// MaxPathColWidth constrains the path column. If 0, a dynamic width is
	// chosen from the terminal width.
	MaxPathColWidth int

	// EnableColors toggles ANSI color output.
	EnableColors bool
}

// NewConsoleRenderer creates a renderer with sensible defaults.
func NewConsoleRenderer() *ConsoleRenderer {
	return &ConsoleRenderer{EnableColors: true}
}

// Entries renders a shallow directory listing, directories first.
func (r *ConsoleRenderer) Entries(entries []repository.ContentEntry, w io.Writer) {
	repository.SortEntries(entries)

	tw := r.newTable(w)
	tw.AppendHeader(table.Row{"Name", "Type", "Size", "SHA"})
	for _, e := range entries {
		name := e.Name
		if e.Type == repository.TypeDir {
			name = r.color(name+"/", text.FgCyan)
		}
		tw.AppendRow(table.Row{name, e.Type, sizeCell(e), shortSHA(e.SHA)})
	}
	tw.Render()
}

// Listing renders a recursive file listing, with footnotes for truncated
// or degraded results.
func (r *ConsoleRenderer) Listing(listing *repository.TreeListing, w io.Writer) {
	entries := append([]repository.TreeEntry(nil), listing.Entries...)
	repository.SortTreeEntries(entries)

	tw := r.newTable(w)
	tw.AppendHeader(table.Row{"Path", "Size", "SHA"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Path, fmt.Sprintf("%d", e.Size), shortSHA(e.SHA)})
	}
	tw.Render()

	fmt.Fprintf(w, "\n%d files\n", len(entries))
	if listing.Truncated {
		fmt.Fprintln(w, r.color("note: the backend truncated the tree; this listing is incomplete", text.FgYellow))
	}
	if listing.Degraded {
		fmt.Fprintln(w, r.color("note: recursive listing unavailable; showing the top level only", text.FgYellow))
	}
}

// Directories renders a ranked discovery result.
func (r *ConsoleRenderer) Directories(title string, dirs []string, w io.Writer) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(dirs) == 0 {
		fmt.Fprintln(w, "  (none found)")
		return
	}
	for i, d := range dirs {
		fmt.Fprintf(w, "  %d. %s\n", i+1, d)
	}
}

// Info renders repository metadata.
func (r *ConsoleRenderer) Info(info *repository.Info, w io.Writer) {
	tw := r.newTable(w)
	tw.AppendRow(table.Row{"Repository", info.FullName})
	tw.AppendRow(table.Row{"Description", info.Description})
	tw.AppendRow(table.Row{"Default branch", info.DefaultBranch})
	tw.AppendRow(table.Row{"Visibility", visibilityCell(info.Private)})
	tw.AppendRow(table.Row{"Push access", yesNo(info.CanPush)})
	tw.AppendRow(table.Row{"Admin access", yesNo(info.CanAdmin)})
	if info.URL != "" {
		tw.AppendRow(table.Row{"URL", info.URL})
	}
	tw.Render()
}

func (r *ConsoleRenderer) newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false

	if cfg := r.pathColumnConfig(w); cfg != nil {
		tw.SetColumnConfigs(cfg)
	}
	return tw
}

// pathColumnConfig constrains the first (name/path) column to fit the
// terminal, leaving room for the fixed-width metadata columns.
func (r *ConsoleRenderer) pathColumnConfig(w io.Writer) []table.ColumnConfig {
	width := detectTerminalWidth(w)
	if width <= 0 {
		return nil
	}
	if width < 60 {
		width = 60
	}

	pathWidth := r.MaxPathColWidth
	if pathWidth <= 0 {
		pathWidth = width - 30
		if pathWidth > 80 {
			pathWidth = 80
		}
	}

	return []table.ColumnConfig{
		{
			Number:      1,
			WidthMax:    pathWidth,
			WidthMin:    15,
			Transformer: truncTransformer(pathWidth),
		},
	}
}

func (r *ConsoleRenderer) color(s string, c text.Color) string {
	if !r.EnableColors {
		return s
	}
	return c.Sprint(s)
}

func sizeCell(e repository.ContentEntry) string {
	if e.Type == repository.TypeDir {
		return "-"
	}
	return fmt.Sprintf("%d", e.Size)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func visibilityCell(private bool) string {
	if private {
		return "private"
	}
	return "public"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// detectTerminalWidth attempts to get terminal width if writer is a file
// (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer to ellipsize overly wide cells.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if utf8.RuneCountInString(s) <= max {
			return s
		}
		if max <= 1 {
			return "…"
		}
		runes := []rune(s)
		return string(runes[:max-1]) + "…"
	}
}
