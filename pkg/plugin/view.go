// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import "fmt"

// Kind identifies a render tree node.
type Kind uint8

// Node kinds.
const (
	KindText Kind = iota
	KindButton
	KindColumn
	KindRow
	KindSpace
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindButton:
		return "button"
	case KindColumn:
		return "column"
	case KindRow:
		return "row"
	case KindSpace:
		return "space"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "text":
		return KindText, true
	case "button":
		return KindButton, true
	case "column":
		return KindColumn, true
	case "row":
		return KindRow, true
	case "space":
		return KindSpace, true
	default:
		return 0, false
	}
}

// Node is one element of a render tree. The host hands the tree to its UI
// layer; the plugin machinery only rewrites the messages it carries.
type Node struct {
	Kind Kind
	// Text is the content of a text node or the label of a button.
	Text string
	// OnPress is delivered to Update when a button is activated.
	// A button with a zero OnPress is disabled.
	OnPress  Envelope
	Children []Node
}

// Text returns a text node.
func Text(s string) Node {
	return Node{Kind: KindText, Text: s}
}

// Textf returns a formatted text node.
func Textf(format string, args ...any) Node {
	return Text(fmt.Sprintf(format, args...))
}

// Button returns a button that produces onPress when activated.
func Button(label string, onPress Envelope) Node {
	return Node{Kind: KindButton, Text: label, OnPress: onPress}
}

// Column stacks children vertically.
func Column(children ...Node) Node {
	return Node{Kind: KindColumn, Children: children}
}

// Row lays children out horizontally.
func Row(children ...Node) Node {
	return Node{Kind: KindRow, Children: children}
}

// Space returns an empty spacer.
func Space() Node {
	return Node{Kind: KindSpace}
}

// Map returns a copy of the tree with every non-zero message passed through f.
func (n Node) Map(f func(Envelope) Envelope) Node {
	out := Node{Kind: n.Kind, Text: n.Text}
	if !n.OnPress.IsZero() {
		out.OnPress = f(n.OnPress)
	}
	if len(n.Children) > 0 {
		out.Children = make([]Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Map(f)
		}
	}
	return out
}

// Walk visits the tree depth-first, parents before children.
func (n Node) Walk(fn func(Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Interactive returns the enabled buttons in depth-first order.
func (n Node) Interactive() []Node {
	var out []Node
	n.Walk(func(c Node) {
		if c.Kind == KindButton && !c.OnPress.IsZero() {
			out = append(out, c)
		}
	})
	return out
}

// Find returns the first enabled button labelled label.
func (n Node) Find(label string) (Node, bool) {
	for _, b := range n.Interactive() {
		if b.Text == label {
			return b, true
		}
	}
	return Node{}, false
}

// Texts returns the content of every text node in depth-first order.
func (n Node) Texts() []string {
	var out []string
	n.Walk(func(c Node) {
		if c.Kind == KindText {
			out = append(out, c.Text)
		}
	})
	return out
}
