package tree

import (
	"errors"
	"fmt"
)

var ErrInvalidEdit = errors.New("invalid edit")

// Edit replaces the bytes [Start, OldEnd) of a text with NewText, which then
// spans [Start, NewEnd).
type Edit struct {
	Start   int
	OldEnd  int
	NewEnd  int
	NewText []byte
}

// Replace builds the edit that replaces [start, oldEnd) with text.
func Replace(start, oldEnd int, text []byte) Edit {
	return Edit{Start: start, OldEnd: oldEnd, NewEnd: start + len(text), NewText: text}
}

func (e Edit) Delta() int { return e.NewEnd - e.OldEnd }

// IsNoop reports whether the edit changes nothing.
func (e Edit) IsNoop() bool { return e.Start == e.OldEnd && len(e.NewText) == 0 }

func (e Edit) Shift() Shift {
	return Shift{Start: e.Start, OldEnd: e.OldEnd, Delta: e.Delta()}
}

// Validate checks the edit against a text of the given size.
func (e Edit) Validate(size int) error {
	switch {
	case e.Start < 0 || e.Start > e.OldEnd || e.OldEnd > size:
		return fmt.Errorf("%w: range [%d,%d) outside text of %d bytes", ErrInvalidEdit, e.Start, e.OldEnd, size)
	case e.NewEnd-e.Start != len(e.NewText):
		return fmt.Errorf("%w: new end %d does not match %d bytes of new text", ErrInvalidEdit, e.NewEnd, len(e.NewText))
	}
	return nil
}

// Apply returns a new text with the edit applied. text is not modified.
func (e Edit) Apply(text []byte) ([]byte, error) {
	if err := e.Validate(len(text)); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(text)+e.Delta())
	out = append(out, text[:e.Start]...)
	out = append(out, e.NewText...)
	out = append(out, text[e.OldEnd:]...)
	return out, nil
}

func (e Edit) String() string {
	return fmt.Sprintf("[%d,%d)->[%d,%d) %q", e.Start, e.OldEnd, e.Start, e.NewEnd, e.NewText)
}
