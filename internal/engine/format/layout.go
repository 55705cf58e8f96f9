package format

import (
	"slices"
	"strings"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/parser"
	"validatetest/internal/engine/tree"
)

func (f *formatter) write(s string) { f.out.WriteString(s) }

func (f *formatter) nest(fn func()) {
	f.indent += f.opts.IndentWidth
	fn()
	f.indent -= f.opts.IndentWidth
}

func (f *formatter) structureName(n tree.NodeID) string {
	if id := f.first(n, "structure_name"); id != tree.NoNode {
		return f.text(id)
	}
	return f.name(n)
}

func (f *formatter) hasSemicolon(n tree.NodeID) bool {
	for _, c := range f.t.Children(n) {
		if f.kind(c) == ";" {
			return true
		}
	}
	return false
}

// containsNestedBlock looks for a nested block among the fields of n.
func (f *formatter) containsNestedBlock(n tree.NodeID) bool {
	for _, c := range f.t.Children(n) {
		switch f.kind(c) {
		case "nested_structure_block":
			return true
		case "field_list", "field", "field_value":
			if f.containsNestedBlock(c) {
				return true
			}
		}
	}
	return false
}

// containsSplit reports whether n holds an array structure that is always
// split, or a quoted structure that becomes one.
func (f *formatter) containsSplit(n tree.NodeID) bool {
	for d := range f.t.Walk(n) {
		switch f.kind(d) {
		case "array_structure":
			if slices.Contains(f.splitArray, f.structureName(d)) {
				return true
			}
		case "field_value":
			if f.convertible(d) {
				return true
			}
		}
	}
	return false
}

func (f *formatter) structureFits(n tree.NodeID) bool {
	if f.containsNestedBlock(n) || slices.Contains(f.split, f.structureName(n)) {
		return false
	}
	if f.containsSplit(n) || f.hasComment(n) {
		return false
	}
	inline := f.structureInline(n)
	return f.indent+len(inline) <= f.opts.MaxLineLength && !strings.Contains(inline, "\n")
}

func (f *formatter) structure(n tree.NodeID) {
	if f.structureFits(n) {
		f.write(f.pad() + f.structureInline(n))
		return
	}
	f.write(f.pad() + f.structureName(n))
	if fl := f.first(n, "field_list"); fl != tree.NoNode {
		f.write(",")
		name := f.first(n, "structure_name")
		for _, c := range f.t.Children(n) {
			if !f.isComment(c) || f.t.StartByte(c) > f.t.StartByte(fl) {
				continue
			}
			if name != tree.NoNode && f.sameLine(name, c) {
				f.write("  " + f.text(c))
				continue
			}
			f.write("\n")
			f.nest(func() { f.comment(c) })
		}
		f.write("\n")
		f.nest(func() { f.fieldList(fl, "=") })
	}
	if f.hasSemicolon(n) {
		f.write(";")
	}
}

func (f *formatter) scenarioBlock(n tree.NodeID) {
	f.write(f.pad() + f.structureName(n) + " {\n")
	f.nest(func() {
		prev := tree.NoNode
		for _, c := range f.items(n) {
			switch {
			case f.isComment(c):
				if prev != tree.NoNode && !f.isComment(prev) && f.sameLine(prev, c) && f.fitsTrailing(c) {
					f.write("  " + f.text(c))
				} else {
					if prev != tree.NoNode {
						f.write("\n")
					}
					f.comment(c)
				}
			case f.kind(c) == "field":
				if prev != tree.NoNode {
					f.write("\n")
				}
				f.field(c, ": ")
				f.write(",")
			default:
				continue
			}
			prev = c
		}
		if prev != tree.NoNode {
			f.write("\n")
		}
	})
	f.write(f.pad() + "}")
}

// fieldList writes one field per line. Comments only occur between fields.
func (f *formatter) fieldList(n tree.NodeID, sep string) {
	items := f.items(n)
	last := -1
	for i, c := range items {
		if !f.isComment(c) {
			last = i
		}
	}
	prev := tree.NoNode
	for i, c := range items {
		if f.isComment(c) {
			if prev != tree.NoNode && !f.isComment(prev) && f.sameLine(prev, c) && f.fitsTrailing(c) {
				f.write("  " + f.text(c))
			} else {
				f.write("\n")
				f.comment(c)
			}
			prev = c
			continue
		}
		if prev != tree.NoNode {
			f.write("\n")
		}
		f.field(c, sep)
		if i != last {
			f.write(",")
		}
		prev = c
	}
}

func (f *formatter) field(n tree.NodeID, sep string) {
	f.write(f.pad() + f.name(n) + sep)
	if v := f.t.ChildByField(n, "value"); v != tree.NoNode {
		f.fieldValue(v)
	}
}

func (f *formatter) fieldValue(n tree.NodeID) {
	for _, c := range f.t.Children(n) {
		switch f.kind(c) {
		case "nested_structure_block":
			f.nestedBlock(c)
		case "array":
			f.array(c)
		case "angle_bracket_array":
			f.angleArray(c)
		case "typed_value":
			f.typedValue(c)
		case "value":
			f.write(f.valueText(n, c))
		}
	}
}

func (f *formatter) typedValue(n tree.NodeID) {
	f.write("(")
	if id := f.t.ChildByField(n, "type"); id != tree.NoNode {
		f.write(f.text(id))
	}
	f.write(")")
	v := f.t.ChildByField(n, "value")
	if v == tree.NoNode {
		return
	}
	switch f.kind(v) {
	case "array":
		f.array(v)
	case "angle_bracket_array":
		f.angleArray(v)
	default:
		f.write(f.text(v))
	}
}

// blockItem is an element of a nested block with the comment that trails it
// on the same line.
type blockItem struct {
	node     tree.NodeID
	trailing tree.NodeID
}

func (f *formatter) blockItems(n tree.NodeID) []blockItem {
	children := f.items(n)
	var items []blockItem
	for i := 0; i < len(children); i++ {
		c := children[i]
		item := blockItem{node: c, trailing: tree.NoNode}
		if !f.isComment(c) && i+1 < len(children) && f.isComment(children[i+1]) && f.sameLine(c, children[i+1]) {
			item.trailing = children[i+1]
			i++
		}
		items = append(items, item)
	}
	return items
}

// complexValue reports whether a block value needs its own line.
func (f *formatter) complexValue(fv tree.NodeID) bool {
	return f.valueHasNestedBlock(fv) || f.valueHasArrayStructure(fv) || f.convertible(fv) || f.hasComment(fv)
}

func (f *formatter) nestedBlock(n tree.NodeID) {
	f.write("{\n")
	f.nest(func() {
		items := f.blockItems(n)
		hasComplex := slices.ContainsFunc(items, func(it blockItem) bool {
			return f.kind(it.node) == "structure" || (f.kind(it.node) == "field_value" && f.complexValue(it.node))
		})

		indent := f.pad()
		lineLen := 0
		started := false
		breakLine := func() {
			if started {
				f.write(",\n")
				started = false
			}
		}
		trailing := func(c tree.NodeID) {
			if c != tree.NoNode {
				f.write("  " + f.text(c))
			}
		}

		for idx, it := range items {
			isLast := idx == len(items)-1
			switch {
			case f.isComment(it.node):
				breakLine()
				f.comment(it.node)
				f.write("\n")
				lineLen = 0

			case f.kind(it.node) == "structure":
				breakLine()
				f.structure(it.node)
				f.write(",")
				trailing(it.trailing)
				f.write("\n")
				lineLen = 0

			case f.valueHasNestedBlock(it.node) || f.hasComment(it.node):
				breakLine()
				f.write(indent)
				f.fieldValue(it.node)
				f.write(",")
				trailing(it.trailing)
				f.write("\n")
				lineLen = 0

			default:
				value := f.fieldValueInline(it.node)
				commentLen := 0
				if it.trailing != tree.NoNode {
					commentLen = 2 + len(f.text(it.trailing))
				}
				commentBefore := it.trailing != tree.NoNode &&
					f.indent+len(value)+1+commentLen > f.opts.MaxLineLength
				if commentBefore {
					breakLine()
					f.comment(it.trailing)
					f.write("\n")
					it.trailing = tree.NoNode
					commentLen = 0
				}

				if hasComplex {
					breakLine()
					f.write(indent)
					if f.valueAlwaysSplit(it.node) || f.convertible(it.node) || f.indent+len(value) > f.opts.MaxLineLength {
						f.fieldValue(it.node)
					} else {
						f.write(value)
					}
					f.write(",")
					trailing(it.trailing)
					f.write("\n")
					lineLen = 0
					continue
				}

				if !started {
					f.write(indent)
					lineLen = f.indent
					started = true
				} else if lineLen+2+len(value)+commentLen+1 > f.opts.MaxLineLength {
					f.write(",\n" + indent)
					lineLen = f.indent
				} else {
					f.write(", ")
					lineLen += 2
				}
				f.write(value)
				lineLen += len(value)

				if isLast || it.trailing != tree.NoNode {
					f.write(",")
					trailing(it.trailing)
					f.write("\n")
					started = false
					lineLen = 0
				}
			}
		}
		breakLine()
	})
	f.write(f.pad() + "}")
}

func (f *formatter) valueHasNestedBlock(fv tree.NodeID) bool {
	for _, c := range f.t.Children(fv) {
		switch f.kind(c) {
		case "nested_structure_block":
			return true
		case "array":
			for _, e := range f.kids(c, "array_element") {
				if f.elementHasNestedBlock(e) {
					return true
				}
			}
		}
	}
	return false
}

func (f *formatter) valueHasArrayStructure(fv tree.NodeID) bool {
	for _, c := range f.kids(fv, "array") {
		for _, e := range f.kids(c, "array_element") {
			if f.first(e, "array_structure") != tree.NoNode {
				return true
			}
		}
	}
	return false
}

func (f *formatter) valueAlwaysSplit(fv tree.NodeID) bool {
	for _, c := range f.kids(fv, "array") {
		if slices.ContainsFunc(f.kids(c, "array_element"), f.elementAlwaysSplit) {
			return true
		}
	}
	return false
}

func (f *formatter) elementHasNestedBlock(e tree.NodeID) bool {
	s := f.first(e, "array_structure")
	return s != tree.NoNode && f.containsNestedBlock(s)
}

func (f *formatter) elementAlwaysSplit(e tree.NodeID) bool {
	s := f.first(e, "array_structure")
	return s != tree.NoNode && slices.Contains(f.splitArray, f.structureName(s))
}

// elementOwnLine reports whether an array element cannot be packed with others.
func (f *formatter) elementOwnLine(e tree.NodeID) bool {
	if f.elementHasNestedBlock(e) || f.hasComment(e) {
		return true
	}
	fv := f.first(e, "field_value")
	return fv != tree.NoNode && f.valueHasNestedBlock(fv)
}

func (f *formatter) arrayElement(e tree.NodeID) {
	if s := f.first(e, "array_structure"); s != tree.NoNode {
		f.arrayStructure(s)
		return
	}
	if fv := f.first(e, "field_value"); fv != tree.NoNode {
		f.fieldValue(fv)
	}
}

func (f *formatter) arrayStructure(n tree.NodeID) {
	name := f.structureName(n)
	f.write(name)
	fl := f.first(n, "field_list")
	if fl == tree.NoNode {
		return
	}
	inline := f.fieldListInline(fl)
	if slices.Contains(f.splitArray, name) || f.containsNestedBlock(fl) || f.hasComment(fl) ||
		f.indent+len(inline)+2 > f.opts.MaxLineLength {
		f.write(",\n")
		f.nest(func() { f.fieldList(fl, "=") })
		return
	}
	f.write(", " + inline)
}

func (f *formatter) array(n tree.NodeID) {
	elements := f.kids(n, "array_element")
	commented := f.hasComment(n)
	if len(elements) == 0 && !commented {
		f.write("[]")
		return
	}
	nested := slices.ContainsFunc(elements, f.elementHasNestedBlock)
	split := slices.ContainsFunc(elements, f.elementAlwaysSplit)

	if !nested && !split && !commented {
		inline := f.arrayInline(n)
		if f.indent+len(inline) <= f.opts.MaxLineLength && !strings.Contains(inline, "\n") {
			f.write(inline)
			return
		}
	}
	if len(elements) == 1 && !commented {
		if s := f.first(elements[0], "array_structure"); s != tree.NoNode {
			if nested || split || f.indent+len(f.elementInline(elements[0])) > f.opts.MaxLineLength {
				f.write("[")
				f.arrayStructure(s)
				f.write("]")
				return
			}
		}
	}

	f.write("[\n")
	f.nest(func() {
		indent := f.pad()
		lineLen := 0
		started := false
		items := f.items(n)
		for i, c := range items {
			isLast := i == len(items)-1
			switch {
			case f.isComment(c):
				if started {
					f.write(",\n")
					started = false
				}
				f.comment(c)
				f.write("\n")
			case f.elementOwnLine(c):
				if started {
					f.write(",\n")
					started = false
				}
				f.write(indent)
				f.arrayElement(c)
				f.write(",\n")
			case f.first(c, "array_structure") != tree.NoNode:
				if started {
					f.write(",\n")
					started = false
				}
				inline := f.elementInline(c)
				f.write(indent)
				if f.elementAlwaysSplit(c) || f.indent+len(inline) > f.opts.MaxLineLength {
					f.arrayElement(c)
				} else {
					f.write(inline)
				}
				f.write(",\n")
			default:
				inline := f.elementInline(c)
				if !started {
					f.write(indent)
					lineLen = f.indent
					started = true
				} else if lineLen+2+len(inline) > f.opts.MaxLineLength {
					f.write(",\n" + indent)
					lineLen = f.indent
				} else {
					f.write(", ")
					lineLen += 2
				}
				f.write(inline)
				lineLen += len(inline)
				if isLast {
					f.write(",\n")
					started = false
				}
			}
		}
		if started {
			f.write(",\n")
		}
	})
	f.write(f.pad() + "]")
}

func (f *formatter) angleArray(n tree.NodeID) {
	if f.hasComment(n) {
		f.write("<\n")
		f.nest(func() {
			for _, c := range f.items(n) {
				if f.isComment(c) {
					f.comment(c)
				} else {
					f.write(f.pad())
					f.fieldValue(c)
					f.write(",")
				}
				f.write("\n")
			}
		})
		f.write(f.pad() + ">")
		return
	}
	values := f.kids(n, "field_value")
	f.write("<")
	for i, v := range values {
		if i > 0 {
			f.write(", ")
		}
		f.fieldValue(v)
	}
	f.write(">")
}

// Inline renderings. Callers make sure n holds no comments.

func (f *formatter) structureInline(n tree.NodeID) string {
	s := f.structureName(n)
	if fl := f.first(n, "field_list"); fl != tree.NoNode {
		s += ", " + f.fieldListInline(fl)
	}
	if f.hasSemicolon(n) {
		s += ";"
	}
	return s
}

func (f *formatter) fieldListInline(n tree.NodeID) string {
	fields := f.kids(n, "field")
	parts := make([]string, len(fields))
	for i, fd := range fields {
		parts[i] = f.fieldInline(fd)
	}
	return strings.Join(parts, ", ")
}

func (f *formatter) fieldInline(n tree.NodeID) string {
	s := f.name(n) + "="
	if v := f.t.ChildByField(n, "value"); v != tree.NoNode {
		s += f.fieldValueInline(v)
	}
	return s
}

func (f *formatter) fieldValueInline(n tree.NodeID) string {
	for _, c := range f.t.Children(n) {
		switch f.kind(c) {
		case "nested_structure_block":
			return f.nestedBlockInline(c)
		case "array":
			return f.arrayInline(c)
		case "angle_bracket_array":
			return f.angleArrayInline(c)
		case "typed_value":
			return f.typedValueInline(c)
		case "value":
			return f.valueInline(n, c)
		}
	}
	return ""
}

func (f *formatter) nestedBlockInline(n tree.NodeID) string {
	var parts []string
	for _, c := range f.items(n) {
		switch f.kind(c) {
		case "structure":
			parts = append(parts, f.structureInline(c))
		case "field_value":
			parts = append(parts, f.fieldValueInline(c))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (f *formatter) typedValueInline(n tree.NodeID) string {
	s := "("
	if id := f.t.ChildByField(n, "type"); id != tree.NoNode {
		s += f.text(id)
	}
	s += ")"
	v := f.t.ChildByField(n, "value")
	switch {
	case v == tree.NoNode:
	case f.kind(v) == "array":
		s += f.arrayInline(v)
	case f.kind(v) == "angle_bracket_array":
		s += f.angleArrayInline(v)
	default:
		s += f.text(v)
	}
	return s
}

func (f *formatter) arrayInline(n tree.NodeID) string {
	elements := f.kids(n, "array_element")
	parts := make([]string, len(elements))
	for i, e := range elements {
		parts[i] = f.elementInline(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (f *formatter) elementInline(e tree.NodeID) string {
	if s := f.first(e, "array_structure"); s != tree.NoNode {
		out := f.structureName(s)
		if fl := f.first(s, "field_list"); fl != tree.NoNode {
			out += ", " + f.fieldListInline(fl)
		}
		return out
	}
	if fv := f.first(e, "field_value"); fv != tree.NoNode {
		return f.fieldValueInline(fv)
	}
	return ""
}

func (f *formatter) angleArrayInline(n tree.NodeID) string {
	values := f.kids(n, "field_value")
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = f.fieldValueInline(v)
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

// Quoted structures.

// convertible reports whether fv is a quoted expected-issue or change-severity
// structure in a position where it can be written as an array.
func (f *formatter) convertible(fv tree.NodeID) bool {
	if f.kind(fv) != "field_value" {
		return false
	}
	switch f.kind(f.t.Parent(fv)) {
	case "field", "nested_structure_block":
	default:
		return false
	}
	v := f.first(fv, "value")
	if v == tree.NoNode {
		return false
	}
	_, ok := f.quoted(f.text(v))
	return ok
}

// quoted returns the parsed array for a convertible string literal.
func (f *formatter) quoted(text string) (*formatter, bool) {
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return nil, false
	}
	inner := text[1 : len(text)-1]
	if !slices.ContainsFunc(quotedStructures, func(p string) bool { return strings.HasPrefix(inner, p) }) {
		return nil, false
	}
	src := "x, v=[" + unescape(inner) + "]"
	t, diags := parser.Parse(grammar.ValidateTest(), []byte(src))
	if len(diags) > 0 || t.HasError() {
		return nil, false
	}
	sub := newFormatter(t, f.opts, f.indent)
	if sub.hasComment(t.Root()) || sub.quotedArray() == tree.NoNode {
		return nil, false
	}
	return sub, true
}

// quotedArray finds the array of the wrapper structure built by quoted.
func (f *formatter) quotedArray() tree.NodeID {
	s := f.first(f.t.Root(), "structure")
	if s == tree.NoNode {
		return tree.NoNode
	}
	fl := f.first(s, "field_list")
	if fl == tree.NoNode {
		return tree.NoNode
	}
	fields := f.kids(fl, "field")
	if len(fields) != 1 {
		return tree.NoNode
	}
	fv := f.t.ChildByField(fields[0], "value")
	if fv == tree.NoNode {
		return tree.NoNode
	}
	arr := f.first(fv, "array")
	if arr == tree.NoNode || len(f.kids(arr, "array_element")) != 1 {
		return tree.NoNode
	}
	return arr
}

func (f *formatter) valueText(fv, v tree.NodeID) string {
	if f.kind(f.t.Parent(fv)) == "field" || f.kind(f.t.Parent(fv)) == "nested_structure_block" {
		if sub, ok := f.quoted(f.text(v)); ok {
			sub.array(sub.quotedArray())
			return sub.out.String()
		}
	}
	return f.text(v)
}

func (f *formatter) valueInline(fv, v tree.NodeID) string {
	if f.convertible(fv) {
		if sub, ok := f.quoted(f.text(v)); ok {
			return sub.arrayInline(sub.quotedArray())
		}
	}
	return f.text(v)
}

// unescape resolves \" and \\ and keeps every other escape as written.
func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
