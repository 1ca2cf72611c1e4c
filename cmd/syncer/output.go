package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"bizsync/internal/domain"
)

var (
	colorRed    = color.New(color.FgRed)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorBlue   = color.New(color.FgBlue)
	colorGray   = color.New(color.FgHiBlack)
)

const indent = "  "

func printInfof(msg string, v ...any) {
	fmt.Fprintf(color.Output, "%s%s %s\n", indent, colorBlue.Sprint("•"), fmt.Sprintf(msg, v...))
}

func printSuccessf(msg string, v ...any) {
	fmt.Fprintf(color.Output, "%s%s %s\n", indent, colorGreen.Sprint("✔"), fmt.Sprintf(msg, v...))
}

func printWarnf(msg string, v ...any) {
	fmt.Fprintf(color.Output, "%s%s %s\n", indent, colorYellow.Sprint("!"), fmt.Sprintf(msg, v...))
}

func printError(err error) {
	fmt.Fprintf(color.Error, "%s%s %s\n", indent, colorRed.Sprint("⨯"), err)
}

func printResult(res domain.SyncResult) {
	if res.Failed() {
		fmt.Fprintf(color.Output, "%s%s %-16s %s\n", indent, colorRed.Sprint("⨯"), res.Category, colorRed.Sprint(res.Failure))
		return
	}

	fmt.Fprintf(color.Output, "%s%s %-16s pushed %d, pulled %d%s\n",
		indent, colorGreen.Sprint("✔"), res.Category, res.Pushed, res.Pulled, details(res))
}

func details(res domain.SyncResult) string {
	var out string
	if res.Rejected > 0 {
		out += colorYellow.Sprintf(", rejected %d", res.Rejected)
	}
	if n := res.ConflictsResolvedByRemote + res.ConflictsResolvedByLocal; n > 0 {
		out += colorGray.Sprintf(", conflicts %d (remote %d, local %d)",
			n, res.ConflictsResolvedByRemote, res.ConflictsResolvedByLocal)
	}
	return out
}

func printStatus(status *domain.SyncStatus) {
	printInfof("owner %s", status.OwnerID)
	if status.Running {
		printWarnf("a sync pass is running")
	}

	if len(status.Checkpoints) == 0 {
		printInfof("no checkpoints yet, the next pass pulls everything")
		return
	}

	categories := make([]domain.Category, 0, len(status.Checkpoints))
	for c := range status.Checkpoints {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Order() < categories[j].Order() })

	for _, c := range categories {
		fmt.Fprintf(color.Output, "%s%s %-16s %d\n", indent, colorGray.Sprint("·"), c, status.Checkpoints[c])
	}
}
