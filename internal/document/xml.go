// Package document — xml.go
//
// XML tree that preserves element order, attributes, text and tail content,
// comments, and processing instructions. Both text nodes and attribute
// values are walked as leaves. Input in a non-UTF-8 encoding is decoded via
// x/net/html/charset; output is always UTF-8.
//
// Namespace handling follows encoding/xml: prefixed names are resolved to
// their namespace URL on parse, so exotic prefix layouts do not round-trip
// byte-for-byte. Structure and content are preserved.
package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

type xmlElement struct {
	name     xml.Name
	attrs    []xml.Attr
	children []xmlChild
}

// xmlChild is one of *xmlElement, xmlText, xmlComment, xmlProcInst, xmlDirective.
type xmlChild any

type xmlText string
type xmlComment string
type xmlDirective string

type xmlProcInst struct {
	target string
	inst   string
}

// xmlDocument holds the prolog (declaration, comments, doctype) and the
// single root element.
type xmlDocument struct {
	hasDecl bool
	prolog  []xmlChild // comments, non-xml proc insts, directives before the root
	root    *xmlElement
}

func parseXML(data []byte) (*xmlDocument, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	doc := &xmlDocument{}
	var stack []*xmlElement

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document: parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name, attrs: copyAttrs(t.Attr)}
			if len(stack) == 0 {
				if doc.root != nil {
					return nil, errors.New("document: parse xml: multiple root elements")
				}
				doc.root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("document: parse xml: unexpected end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := string(t)
			if len(stack) == 0 {
				if strings.TrimSpace(text) != "" {
					return nil, errors.New("document: parse xml: text outside root element")
				}
				continue
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, xmlText(text))
		case xml.Comment:
			c := xmlComment(string(t))
			if len(stack) == 0 {
				doc.prolog = append(doc.prolog, c)
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, c)
			}
		case xml.ProcInst:
			if t.Target == "xml" && len(stack) == 0 {
				doc.hasDecl = true
				continue
			}
			pi := xmlProcInst{target: t.Target, inst: string(t.Inst)}
			if len(stack) == 0 {
				doc.prolog = append(doc.prolog, pi)
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, pi)
			}
		case xml.Directive:
			d := xmlDirective(string(t))
			if len(stack) == 0 {
				doc.prolog = append(doc.prolog, d)
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, d)
			}
		}
	}

	if doc.root == nil {
		return nil, errors.New("document: parse xml: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("document: parse xml: unclosed element <%s>", stack[len(stack)-1].name.Local)
	}
	return doc, nil
}

func copyAttrs(attrs []xml.Attr) []xml.Attr {
	out := make([]xml.Attr, len(attrs))
	copy(out, attrs)
	return out
}

func (d *xmlDocument) Format() Format { return FormatXML }

func (d *xmlDocument) Transform(fn LeafFunc) error {
	return d.root.transform("/"+d.root.name.Local, fn)
}

func (el *xmlElement) transform(path string, fn LeafFunc) error {
	for i := range el.attrs {
		loc := path + "/@" + attrName(el.attrs[i].Name)
		out, err := fn(loc, el.attrs[i].Value)
		if err != nil {
			return err
		}
		el.attrs[i].Value = out
	}

	// Sibling position per element name, 1-based, XPath style.
	namePos := make(map[string]int)
	textPos := 0
	for i, child := range el.children {
		switch c := child.(type) {
		case *xmlElement:
			namePos[c.name.Local]++
			childPath := fmt.Sprintf("%s/%s[%d]", path, c.name.Local, namePos[c.name.Local])
			if err := c.transform(childPath, fn); err != nil {
				return err
			}
		case xmlText:
			textPos++
			loc := path + "/text()"
			if textPos > 1 {
				loc = fmt.Sprintf("%s/text()[%d]", path, textPos)
			}
			out, err := fn(loc, string(c))
			if err != nil {
				return err
			}
			el.children[i] = xmlText(out)
		}
	}
	return nil
}

func (d *xmlDocument) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if d.hasDecl {
		buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	}
	for _, item := range d.prolog {
		writeXMLMisc(&buf, item)
		buf.WriteByte('\n')
	}
	d.root.encode(&buf)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (el *xmlElement) encode(buf *bytes.Buffer) {
	name := elementName(el.name)
	buf.WriteByte('<')
	buf.WriteString(name)
	for _, a := range el.attrs {
		buf.WriteByte(' ')
		buf.WriteString(attrName(a.Name))
		buf.WriteString(`="`)
		escapeXML(buf, a.Value, true)
		buf.WriteByte('"')
	}
	if len(el.children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	for _, child := range el.children {
		switch c := child.(type) {
		case *xmlElement:
			c.encode(buf)
		case xmlText:
			escapeXML(buf, string(c), false)
		default:
			writeXMLMisc(buf, c)
		}
	}
	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteByte('>')
}

func writeXMLMisc(buf *bytes.Buffer, item xmlChild) {
	switch c := item.(type) {
	case xmlComment:
		buf.WriteString("<!--")
		buf.WriteString(string(c))
		buf.WriteString("-->")
	case xmlProcInst:
		buf.WriteString("<?")
		buf.WriteString(c.target)
		if c.inst != "" {
			buf.WriteByte(' ')
			buf.WriteString(c.inst)
		}
		buf.WriteString("?>")
	case xmlDirective:
		buf.WriteString("<!")
		buf.WriteString(string(c))
		buf.WriteByte('>')
	}
}

// elementName renders an element name. Names parsed from a default-namespace
// document keep their local part; the xmlns attribute itself is preserved in
// the attribute list.
func elementName(n xml.Name) string {
	return n.Local
}

// attrName renders an attribute name. The decoder resolves prefixed
// attributes to their namespace URL, which is not writable as a prefix;
// those collapse to the local name, except the fixed xml: binding.
func attrName(n xml.Name) string {
	switch n.Space {
	case "":
		return n.Local
	case "xmlns":
		return "xmlns:" + n.Local
	case "http://www.w3.org/XML/1998/namespace":
		return "xml:" + n.Local
	default:
		return n.Local
	}
}

// escapeXML writes s with the minimal escaping each context requires.
// xml.EscapeText is not used because it also escapes newlines and tabs,
// which would mangle formatted text content.
func escapeXML(buf *bytes.Buffer, s string, attr bool) {
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			if attr {
				buf.WriteString("&quot;")
			} else {
				buf.WriteRune(r)
			}
		default:
			buf.WriteRune(r)
		}
	}
}
