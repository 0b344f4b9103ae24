// Package status prints user-facing progress for indexing runs. Structured
// logging stays on zerolog; this is only the console surface.
package status

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/walteh/srcsrv/pkg/index"
)

// 📝 Header prints the run banner
func Header(msg string) {
	name := color.New(color.Bold, color.FgCyan).Sprint("srcsrv")
	fmt.Printf("\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
}

// ✅ TargetIndexed prints one successfully indexed target
func TargetIndexed(res *index.Result) {
	pterm.Success.WithPrefix(pterm.Prefix{Text: "✓"}).
		Printf("%s (%d sources, %s)\n", res.Target, res.Sources, res.Duration.Round(time.Millisecond))
}

// ❌ TargetFailed prints one failed target with its stage
func TargetFailed(terr *index.TargetError) {
	pterm.Error.WithPrefix(pterm.Prefix{Text: "✗"}).
		Printf("%s (%s stage)\n", terr.Target, terr.Stage)
	pterm.Error.Println(terr.Err)
}

// 📊 BatchSummary prints the aggregate outcome
func BatchSummary(batch *index.Batch) {
	switch {
	case batch.Processed == 0 && batch.Failed == 0:
		pterm.Warning.Println("no symbol files processed")
	case batch.Failed > 0:
		pterm.Warning.Printf("indexed %d target(s), %d failed (%.2fs)\n",
			batch.Processed, batch.Failed, batch.Duration.Seconds())
	default:
		pterm.Success.Printf("indexed %d target(s) (%.2fs)\n",
			batch.Processed, batch.Duration.Seconds())
	}
}

// ⚠️ Warn prints a warning line
func Warn(msg string) {
	pterm.Warning.Println(msg)
}
