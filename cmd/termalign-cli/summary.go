package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"

	"yashubustudio/termalign/alignment"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	reviewColor = color.New(color.FgYellow)
	missColor   = color.New(color.FgRed)
)

func printSummary(w io.Writer, res *alignment.AlignmentResult) {
	s := res.Summary()
	fmt.Fprintln(w)
	headerColor.Fprintln(w, "==== alignment summary ====")
	fmt.Fprintf(w, "term sheet: %s  template: %s\n", res.TSDocumentID, res.TemplateDocumentID)
	okColor.Fprintf(w, "matched: %d (insert %d, override %d)\n", s.Matched, s.Inserts, s.Overrides)
	if s.NeedsReview > 0 {
		reviewColor.Fprintf(w, "needs review: %d\n", s.NeedsReview)
	}

	methods := make([]string, 0, len(s.ByMethod))
	for m := range s.ByMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  %-16s %d\n", m, s.ByMethod[alignment.MatchMethod(m)])
	}

	for _, m := range res.Matches {
		c := okColor
		if m.NeedsReview {
			c = reviewColor
		}
		c.Fprintf(w, "  - %s -> %s [%s %.3f %s]\n", m.TermID, m.ClauseID, m.Method, m.Confidence, m.Action)
	}
	if len(res.UnmatchedTerms) > 0 {
		missColor.Fprintf(w, "unmatched terms: %d\n", len(res.UnmatchedTerms))
		for _, u := range res.UnmatchedTerms {
			fmt.Fprintf(w, "  - %s\n", u)
		}
	}
	if len(res.UnmatchedClauses) > 0 {
		fmt.Fprintf(w, "unmatched clauses: %d\n", len(res.UnmatchedClauses))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
