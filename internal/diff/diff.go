// Package diff computes line-based unified diffs between snippet versions.
package diff

import (
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Stats summarises a unified diff.
type Stats struct {
	Additions int
	Deletions int
}

// Unified returns a unified diff of source → target content, labelled
// with the version numbers of the two snippets (e.g. "v1" → "v2").
func Unified(sourceContent string, sourceVersion int, targetContent string, targetVersion int) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(sourceContent),
		B:        difflib.SplitLines(targetContent),
		FromFile: label(sourceVersion),
		ToFile:   label(targetVersion),
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

func label(version int) string {
	return "v" + strconv.Itoa(version)
}

// Count derives addition/deletion totals from a unified diff: lines
// starting with "+" excluding the "+++" header, and symmetrically for
// deletions.
func Count(unified string) Stats {
	var st Stats
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			st.Additions++
		case strings.HasPrefix(line, "-"):
			st.Deletions++
		}
	}
	return st
}
