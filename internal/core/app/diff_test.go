package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"validatetest/internal/engine/tree"
)

func TestEditBetween(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		want     tree.Edit
	}{
		{"equal", "play", "play", tree.Replace(4, 4, []byte{})},
		{"insert", "play", "play, a=1", tree.Replace(4, 4, []byte(", a=1"))},
		{"delete", "play, a=1", "play", tree.Replace(4, 9, []byte{})},
		{"replace tail", "seek, start=1.0", "seek, start=2.5", tree.Replace(12, 15, []byte("2.5"))},
		{"replace middle", "seek, start=1.0;", "seek, start=2.0;", tree.Replace(12, 13, []byte("2"))},
		{"multibyte", "a=\"héllo\"", "a=\"hallo\"", tree.Replace(4, 6, []byte("a"))},
		{"repeated", "aaa", "aaaa", tree.Replace(3, 3, []byte("a"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := editBetween([]byte(tt.old), []byte(tt.new))
			assert.Equal(t, tt.want.Start, got.Start)
			assert.Equal(t, tt.want.OldEnd, got.OldEnd)
			assert.Equal(t, tt.want.NewEnd, got.NewEnd)
			assert.Equal(t, string(tt.want.NewText), string(got.NewText))
		})
	}
}

func TestEditBetweenApplies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		old := rapid.SliceOf(rapid.Byte()).Draw(t, "old")
		new := rapid.SliceOf(rapid.Byte()).Draw(t, "new")
		if rapid.Bool().Draw(t, "shared") {
			new = append(append([]byte{}, old...), new...)
		}
		e := editBetween(old, new)
		if err := e.Validate(len(old)); err != nil {
			t.Fatalf("invalid edit %s: %v", e, err)
		}
		got, err := e.Apply(old)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(new) {
			t.Fatalf("edit %s turns %q into %q, want %q", e, old, got, new)
		}
	})
}

func TestUnifiedDiff(t *testing.T) {
	assert.Empty(t, UnifiedDiff("a.validatetest", "play\n", "play\n"))

	got := UnifiedDiff("a.validatetest", "play\nseek,start=1\nstop\n", "play\nseek, start=1\nstop\n")
	assert.Equal(t, "--- a/a.validatetest\n+++ b/a.validatetest\n"+
		"@@ -1,3 +1,3 @@\n"+
		" play\n"+
		"-seek,start=1\n"+
		"+seek, start=1\n"+
		" stop\n", got)

	got = UnifiedDiff("x", "play", "play\n")
	assert.Equal(t, "--- a/x\n+++ b/x\n"+
		"@@ -1 +1 @@\n"+
		"-play\n\\ No newline at end of file\n"+
		"+play\n", got)
}

func TestUnifiedDiffSplitsDistantHunks(t *testing.T) {
	var a, b string
	for i := range 20 {
		line := string(rune('a'+i)) + "\n"
		a += line
		switch i {
		case 1:
			b += "B\n"
		case 18:
			b += "S\n"
		default:
			b += line
		}
	}
	got := UnifiedDiff("f", a, b)
	require.Contains(t, got, "@@ -1,5 +1,5 @@\n")
	require.Contains(t, got, "@@ -16,5 +16,5 @@\n")
	assert.Contains(t, got, "-b\n+B\n")
	assert.Contains(t, got, "-s\n+S\n")
}
