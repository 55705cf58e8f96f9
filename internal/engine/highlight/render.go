package highlight

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme maps capture names to styles. A capture without its own style falls
// back to its dotted prefix, so "function.call" uses "function".
type Theme map[string]lipgloss.Style

// DefaultTheme builds the terminal theme on renderer r.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	style := func(color string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(color)).TabWidth(lipgloss.NoTabConversion)
	}
	return Theme{
		"comment":               style("#64748B").Italic(true),
		"constant":              style("#F59E0B"),
		"error":                 style("#F87171").Underline(true),
		"function":              style("#3B82F6"),
		"keyword":               style("#A78BFA").Bold(true),
		"number":                style("#F59E0B"),
		"operator":              style("#94A3B8"),
		"property":              style("#38BDF8"),
		"punctuation":           style("#94A3B8"),
		"string":                style("#10B981"),
		"string.special":        style("#34D399"),
		"type":                  style("#FBBF24"),
		"variable":              style("#E2E8F0"),
		"punctuation.delimiter": style("#64748B"),
	}
}

func (t Theme) lookup(capture string) (lipgloss.Style, bool) {
	for name := capture; name != ""; {
		if s, ok := t[name]; ok {
			return s, true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return lipgloss.Style{}, false
}

// Render styles text with spans. Where spans overlap the innermost one wins.
func Render(text []byte, spans []Span, theme Theme) string {
	owner := make([]int, len(text))
	for i := range owner {
		owner[i] = -1
	}
	for i, s := range spans {
		if _, ok := theme.lookup(s.Capture); !ok {
			continue
		}
		for p := max(s.Start, 0); p < min(s.End, len(text)); p++ {
			owner[p] = i
		}
	}
	var b strings.Builder
	for start := 0; start < len(text); {
		end := start + 1
		for end < len(text) && owner[end] == owner[start] {
			end++
		}
		chunk := string(text[start:end])
		if i := owner[start]; i >= 0 {
			style, _ := theme.lookup(spans[i].Capture)
			// Styles pad multi-line blocks, so lines are rendered one at a time.
			lines := strings.Split(chunk, "\n")
			for j, line := range lines {
				if line != "" {
					lines[j] = style.Render(line)
				}
			}
			chunk = strings.Join(lines, "\n")
		}
		b.WriteString(chunk)
		start = end
	}
	return b.String()
}
