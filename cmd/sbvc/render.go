package main

import (
	"fmt"
	"io"
	"strings"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"
	"sbvc/internal/history"
	"sbvc/internal/store"

	"github.com/fatih/color"
)

const dateLayout = "2006-01-02 15:04:05"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func printLog(w io.Writer, snap history.Snapshot) {
	for _, v := range snap.Versions {
		marker := " "
		if v.ID == snap.Current.ID {
			marker = green("*")
		}
		base := "root"
		if !v.IsRoot() {
			base = fmt.Sprintf("from %d", v.Base)
		}
		fmt.Fprintf(w, "%s %s  %s  %s  (%s)\n",
			marker,
			yellow(fmt.Sprintf("%4d", v.ID)),
			cyan(v.Date.Local().Format(dateLayout)),
			v.Name,
			base,
		)
	}
}

func printTree(w io.Writer, root *store.Node, current uint32) {
	var walk func(n *store.Node, prefix string, last bool)
	walk = func(n *store.Node, prefix string, last bool) {
		branch, next := "├── ", prefix+"│   "
		if last {
			branch, next = "└── ", prefix+"    "
		}
		if n.Depth == 0 {
			branch, next = "", ""
		}

		label := fmt.Sprintf("%s %s", yellow(n.Version.ID), n.Version.Name)
		if n.Version.ID == current {
			label = bold(label) + " " + green("(current)")
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, branch, label)

		for i, child := range n.Children {
			walk(child, next, i == len(n.Children)-1)
		}
	}
	walk(root, "", true)
}

func printStatus(w io.Writer, snap history.Snapshot) {
	fmt.Fprintf(w, "On version %s: %s\n", yellow(snap.Current.ID), snap.Current.Name)
	fmt.Fprintf(w, "Tracking %s\n", snap.TrackedFile)
	switch {
	case snap.DirtyError != "":
		fmt.Fprintf(w, "%s %s\n", red("!"), snap.DirtyError)
	case snap.Dirty:
		fmt.Fprintf(w, "%s uncommitted changes (use \"sbvc commit\" or \"sbvc rollback\")\n", yellow("M"))
	default:
		fmt.Fprintf(w, "%s no uncommitted changes\n", green("✓"))
	}
}

func printColoredDiff(w io.Writer, result *diff.DiffResult) {
	// Create color objects
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	// Process diff line by line
	for _, line := range strings.Split(strings.TrimSuffix(result.Format(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			added.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "%s, %s\n",
		green(fmt.Sprintf("%d insertion(s)", result.Stats.Additions)),
		red(fmt.Sprintf("%d deletion(s)", result.Stats.Deletions)))
}

func errorText(err error) string {
	msg := red("error: ") + err.Error()
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeUncommittedChanges:
		msg += "\n  (commit them, or use \"sbvc checkout --discard\")"
	case apperrors.ErrorTypeNotFound:
		msg += "\n  (use \"sbvc new <file>\" to start tracking a file)"
	}
	return msg
}
