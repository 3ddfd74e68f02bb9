package nugetconfig

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type nodeKind int

const (
	elementNode nodeKind = iota
	textNode
	commentNode
	procInstNode
	directiveNode
)

// node is a raw XML node. Names keep their prefix so unknown content
// round-trips without namespace rewriting.
type node struct {
	kind     nodeKind
	name     string
	attrs    []xml.Attr
	children []*node
	data     string
}

// document is a parsed NuGet config file.
type document struct {
	prolog []*node
	root   *node
}

const rootElement = "configuration"

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// parseDocument reads a NuGet config. The root element must be
// <configuration>. A leading UTF-8 byte order mark is skipped and declared
// non-UTF-8 encodings are transcoded; the document is always written back as
// UTF-8.
func parseDocument(r io.Reader) (*document, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	dec := xml.NewDecoder(br)
	dec.CharsetReader = charset.NewReaderLabel
	doc := &document{}
	var stack []*node

	appendNode := func(n *node) {
		if len(stack) == 0 {
			doc.prolog = append(doc.prolog, n)
			return
		}
		top := stack[len(stack)-1]
		top.children = append(top.children, n)
	}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{kind: elementNode, name: qualified(t.Name)}
			for _, a := range t.Attr {
				n.attrs = append(n.attrs, xml.Attr{Name: a.Name, Value: a.Value})
			}
			if len(stack) == 0 {
				if doc.root != nil {
					return nil, errors.New("more than one root element")
				}
				doc.root = n
			} else {
				appendNode(n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].name != name {
				line, _ := dec.InputPos()
				return nil, fmt.Errorf("line %d: unexpected closing tag </%s>", line, name)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if strings.TrimSpace(string(t)) != "" {
					return nil, errors.New("text outside the root element")
				}
				continue
			}
			appendNode(&node{kind: textNode, data: string(t)})
		case xml.Comment:
			if doc.root != nil && len(stack) == 0 {
				continue
			}
			appendNode(&node{kind: commentNode, data: string(t)})
		case xml.ProcInst:
			if t.Target == "xml" {
				continue
			}
			appendNode(&node{kind: procInstNode, name: t.Target, data: string(t.Inst)})
		case xml.Directive:
			appendNode(&node{kind: directiveNode, data: string(t)})
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("unexpected end of file inside <%s>", stack[len(stack)-1].name)
	}
	if doc.root == nil {
		return nil, errors.New("no root element")
	}
	if doc.root.name != rootElement {
		return nil, fmt.Errorf("root element is <%s>, want <%s>", doc.root.name, rootElement)
	}
	return doc, nil
}

// bytes serializes the document with two-space indentation. Whitespace-only
// text is dropped and regenerated.
func (d *document) bytes() []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	for _, n := range d.prolog {
		writeNode(&b, n, 0)
	}
	writeNode(&b, d.root, 0)
	return b.Bytes()
}

func writeNode(b *bytes.Buffer, n *node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n.kind {
	case textNode:
		text := strings.TrimSpace(n.data)
		if text == "" {
			return
		}
		b.WriteString(indent)
		escape(b, text)
		b.WriteByte('\n')
	case commentNode:
		b.WriteString(indent + "<!--" + n.data + "-->\n")
	case procInstNode:
		b.WriteString(indent + "<?" + n.name)
		if n.data != "" {
			b.WriteString(" " + n.data)
		}
		b.WriteString("?>\n")
	case directiveNode:
		b.WriteString(indent + "<!" + n.data + ">\n")
	case elementNode:
		b.WriteString(indent + "<" + n.name)
		for _, a := range n.attrs {
			b.WriteString(" " + qualified(a.Name) + `="`)
			escape(b, a.Value)
			b.WriteByte('"')
		}

		children := significant(n.children)
		switch {
		case len(children) == 0:
			b.WriteString(" />\n")
		case len(children) == 1 && children[0].kind == textNode:
			b.WriteByte('>')
			escape(b, strings.TrimSpace(children[0].data))
			b.WriteString("</" + n.name + ">\n")
		default:
			b.WriteString(">\n")
			for _, c := range children {
				writeNode(b, c, depth+1)
			}
			b.WriteString(indent + "</" + n.name + ">\n")
		}
	}
}

func significant(nodes []*node) []*node {
	out := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n.kind == textNode && strings.TrimSpace(n.data) == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

func escape(b *bytes.Buffer, s string) {
	// EscapeText only fails when the writer does; bytes.Buffer never does.
	_ = xml.EscapeText(b, []byte(s))
}

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if qualified(a.Name) == name {
			return a.Value, true
		}
	}
	return "", false
}

// elements returns the direct child elements named name.
func (n *node) elements(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.kind == elementNode && c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// child returns the first direct child element named name, creating it when
// create is set.
func (n *node) child(name string, create bool) *node {
	if found := n.elements(name); len(found) > 0 {
		return found[0]
	}
	if !create {
		return nil
	}
	c := &node{kind: elementNode, name: name}
	n.children = append(n.children, c)
	return c
}

// removeChildren drops direct children for which drop returns true.
func (n *node) removeChildren(drop func(*node) bool) {
	kept := n.children[:0]
	for _, c := range n.children {
		if !drop(c) {
			kept = append(kept, c)
		}
	}
	n.children = kept
}

func newAdd(key, value string) *node {
	return &node{
		kind: elementNode,
		name: "add",
		attrs: []xml.Attr{
			{Name: xml.Name{Local: "key"}, Value: key},
			{Name: xml.Name{Local: "value"}, Value: value},
		},
	}
}
