package deoptviewer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/kamilpajak/deoptviewer/internal/bundle"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

var summaryHeaders = []string{
	"File",
	"Opt", "Optable", "Sev3",
	"Deopt 1", "Deopt 2", "Deopt 3",
	"IC 1", "IC 2", "IC 3",
	"Score",
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
	hotStyle    = numStyle.Foreground(lipgloss.Color("1")).Bold(true)
)

// printSummary writes the ranked files as a table, at most limit rows.
func printSummary(w io.Writer, rep *models.Report, limit int) {
	if len(rep.Files) == 0 {
		fmt.Fprintln(w, "No files with deoptimizations or inline cache misses.")
		return
	}

	rows := summaryRows(rep, limit)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(summaryHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			case col == len(summaryHeaders)-1 && row == 0:
				return hotStyle
			}
			return numStyle
		})
	fmt.Fprintln(w, t.Render())

	if hidden := len(rep.Files) - len(rows); hidden > 0 {
		dim := color.New(color.FgHiBlack)
		_, _ = dim.Fprintf(w, "  ... and %d more files\n", hidden)
	}

	if errs := sourceErrors(rep); errs > 0 {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "  %d of %d sources could not be resolved\n", errs, len(rep.Files))
	}
}

func summaryRows(rep *models.Report, limit int) [][]string {
	n := len(rep.Files)
	if limit > 0 && n > limit {
		n = limit
	}

	rows := make([][]string, 0, n)
	for _, rf := range rep.Files[:n] {
		f := rf.File
		name := rf.ID
		if f.Source != nil && f.Source.RelativePath != "" {
			name = f.Source.RelativePath
		}

		row := []string{name}
		for _, s := range []models.SeveritySummary{f.Severities.Codes, f.Severities.Deopts, f.Severities.ICs} {
			for _, c := range s {
				row = append(row, strconv.Itoa(c))
			}
		}
		row = append(row, strconv.Itoa(f.Score))
		rows = append(rows, row)
	}
	return rows
}

func sourceErrors(rep *models.Report) int {
	n := 0
	for _, rf := range rep.Files {
		if rf.File.Source != nil && !rf.File.Source.OK() {
			n++
		}
	}
	return n
}

// printDone tells the user where the bundle is and how big it is.
func printDone(w io.Writer, dir string, m *bundle.Manifest) {
	var size uint64
	for _, name := range []string{bundle.DataScript, bundle.DataBinary} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			size += uint64(info.Size())
		}
	}

	fmt.Fprintln(w)
	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(w, "Done! Open %s in your browser.\n", filepath.Join(dir, bundle.IndexFile))
	dim := color.New(color.FgHiBlack)
	_, _ = dim.Fprintf(w, "  run %s, %d files, %s of report data\n", m.RunID, m.Files, humanize.Bytes(size))
}
