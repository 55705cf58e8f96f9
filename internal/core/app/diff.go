package app

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"validatetest/internal/engine/tree"
)

// diffContext is the number of unchanged lines around each hunk.
const diffContext = 3

// editBetween returns the single edit that turns old into new: the bytes
// between their common prefix and common suffix.
func editBetween(old, new []byte) tree.Edit {
	dmp := diffmatchpatch.New()
	a, b := string(old), string(new)

	prefix := min(runePrefixBytes(a, dmp.DiffCommonPrefix(a, b)), len(b))
	// Distinct invalid bytes decode to the same replacement rune.
	for prefix > 0 && !bytes.Equal(old[:prefix], new[:prefix]) {
		prefix--
	}
	a, b = a[prefix:], b[prefix:]
	suffix := min(runeSuffixBytes(a, dmp.DiffCommonSuffix(a, b)), len(b))
	for suffix > 0 && !bytes.Equal(old[len(old)-suffix:], new[len(new)-suffix:]) {
		suffix--
	}
	return tree.Replace(prefix, len(old)-suffix, new[prefix:len(new)-suffix])
}

// runePrefixBytes is the byte length of the first n runes of s.
func runePrefixBytes(s string, n int) int {
	off := 0
	for ; n > 0 && off < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[off:])
		off += size
	}
	return off
}

// runeSuffixBytes is the byte length of the last n runes of s.
func runeSuffixBytes(s string, n int) int {
	end := len(s)
	for ; n > 0 && end > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:end])
		end -= size
	}
	return len(s) - end
}

type lineOp struct {
	kind byte // ' ', '-' or '+'
	text string
}

func lineOps(a, b string) []lineOp {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var ops []lineOp
	for _, d := range diffs {
		kind := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = '-'
		case diffmatchpatch.DiffInsert:
			kind = '+'
		}
		for line := range strings.Lines(d.Text) {
			ops = append(ops, lineOp{kind: kind, text: line})
		}
	}
	return ops
}

// UnifiedDiff renders the line changes from a to b as a unified diff. Equal
// inputs give an empty string.
func UnifiedDiff(name, a, b string) string {
	if a == b {
		return ""
	}
	ops := lineOps(a, b)
	var out strings.Builder
	fmt.Fprintf(&out, "--- a/%s\n+++ b/%s\n", name, name)

	// oldLine[i] and newLine[i] count the lines before ops[i].
	oldLine := make([]int, len(ops)+1)
	newLine := make([]int, len(ops)+1)
	for i, op := range ops {
		oldLine[i+1], newLine[i+1] = oldLine[i], newLine[i]
		if op.kind != '+' {
			oldLine[i+1]++
		}
		if op.kind != '-' {
			newLine[i+1]++
		}
	}

	done := 0
	for i := 0; i < len(ops); {
		if ops[i].kind == ' ' {
			i++
			continue
		}
		start := max(i-diffContext, done)
		last := i
		for j := i; j < len(ops); j++ {
			if ops[j].kind != ' ' {
				last = j
			} else if j-last > 2*diffContext {
				break
			}
		}
		end := min(last+diffContext+1, len(ops))

		fmt.Fprintf(&out, "@@ -%s +%s @@\n",
			hunkRange(oldLine[start], oldLine[end]-oldLine[start]),
			hunkRange(newLine[start], newLine[end]-newLine[start]))
		for _, op := range ops[start:end] {
			out.WriteByte(op.kind)
			out.WriteString(op.text)
			if !strings.HasSuffix(op.text, "\n") {
				out.WriteString("\n\\ No newline at end of file\n")
			}
		}
		done, i = end, end
	}
	return out.String()
}

func hunkRange(before, count int) string {
	start := before + 1
	if count == 0 {
		start = before
	}
	if count == 1 {
		return fmt.Sprint(start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}
