package render

import (
	"html"
	"html/template"
	"sort"
	"strings"
)

// Node is one element of the rendered view tree.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Raw      template.HTML // sanitised markup emitted verbatim after Text
	Children []*Node
}

func el(tag, class string, children ...*Node) *Node {
	n := &Node{Tag: tag}
	if class != "" {
		n.set("class", class)
	}
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

func textEl(tag, class, text string) *Node {
	n := el(tag, class)
	n.Text = text
	return n
}

func (n *Node) set(key, value string) *Node {
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[key] = value
	return n
}

func (n *Node) add(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Attr returns the attribute value, or "".
func (n *Node) Attr(key string) string {
	return n.Attrs[key]
}

// HasClass reports whether class is one of the node's class tokens.
func (n *Node) HasClass(class string) bool {
	for _, c := range strings.Fields(n.Attrs["class"]) {
		if c == class {
			return true
		}
	}
	return false
}

// FindAll returns n and every descendant matching pred, in document order.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		if pred(cur) {
			out = append(out, cur)
		}
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// ByClass returns every node in the subtree carrying class.
func (n *Node) ByClass(class string) []*Node {
	return n.FindAll(func(x *Node) bool { return x.HasClass(class) })
}

// TextContent concatenates the text of the subtree, space separated.
func (n *Node) TextContent() string {
	var parts []string
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur.Text != "" {
			parts = append(parts, cur.Text)
		}
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

var voidElements = map[string]bool{
	"br": true, "hr": true, "img": true, "meta": true, "link": true, "input": true,
}

// HTML serialises the subtree. Attributes are written in sorted order so the
// output is stable.
func (n *Node) HTML() string {
	var b strings.Builder
	n.writeHTML(&b)
	return b.String()
}

func (n *Node) writeHTML(b *strings.Builder) {
	if n.Tag == "" {
		b.WriteString(html.EscapeString(n.Text))
		b.WriteString(string(n.Raw))
		for _, c := range n.Children {
			c.writeHTML(b)
		}
		return
	}

	b.WriteByte('<')
	b.WriteString(n.Tag)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(n.Attrs[k]))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidElements[n.Tag] {
		return
	}
	b.WriteString(html.EscapeString(n.Text))
	b.WriteString(string(n.Raw))
	for _, c := range n.Children {
		c.writeHTML(b)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}
