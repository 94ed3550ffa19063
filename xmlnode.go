// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is a generic XML element: a tag, its attributes in document order and
// its child elements. Character data, comments and processing instructions
// are dropped while parsing.
type Node struct {
	Name     string
	Attrs    []xml.Attr
	Children []*Node
}

// Attr returns the value of the attribute with the given local name
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ParseNode reads one XML document from r and returns its root element.
func ParseNode(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var stack []*Node
	var root *Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 && root != nil {
				return root, nil
			}
		default:
			// CharData, Comment, ProcInst, Directive
		}
	}
	if root == nil {
		return nil, fmt.Errorf("xml: document has no root element")
	}
	return root, nil
}

// ParseNodeString parses an XML document held in a string
func ParseNodeString(s string) (*Node, error) {
	return ParseNode(strings.NewReader(s))
}

// attrs accumulates attributes for a start element
type attrs []xml.Attr

func (a *attrs) add(name, value string) {
	*a = append(*a, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func writeStart(enc *xml.Encoder, tag string, a attrs) error {
	return enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: tag}, Attr: a})
}

func writeEnd(enc *xml.Encoder, tag string) error {
	return enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: tag}})
}

// MarshalElement serializes an element to an XML string
func MarshalElement(el Element, opt WriteOption) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := el.WriteXML(enc, opt, ""); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// indentXML re-encodes an XML document with two-space indentation.
// The input is returned unchanged when it cannot be parsed.
func indentXML(s string) string {
	dec := xml.NewDecoder(strings.NewReader(s))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s
		}
		if cd, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(cd)) == 0 {
			continue
		}
		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return s
		}
	}
	if err := enc.Flush(); err != nil {
		return s
	}
	return buf.String()
}
