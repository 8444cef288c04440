// Package document — json.go
//
// Order-preserving JSON tree. encoding/json's map[string]any randomizes key
// order, which would break both structural preservation and deterministic
// placeholder numbering across runs, so the tree is built directly from the
// decoder's token stream. Number literals are kept verbatim via json.Number.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type jsonKind int

const (
	jsonObject jsonKind = iota
	jsonArray
	jsonString
	jsonLiteral // number, bool, or null — kept as source text
)

type jsonMember struct {
	key string
	val *jsonNode
}

type jsonNode struct {
	kind    jsonKind
	members []jsonMember // jsonObject
	elems   []*jsonNode  // jsonArray
	str     string       // jsonString
	lit     string       // jsonLiteral
}

// jsonDocument wraps the root node of an order-preserving JSON tree.
type jsonDocument struct {
	root *jsonNode
}

func parseJSON(data []byte) (*jsonDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := readJSONValue(dec)
	if err != nil {
		return nil, fmt.Errorf("document: parse json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("document: parse json: trailing content after top-level value")
	}
	return &jsonDocument{root: root}, nil
}

func readJSONValue(dec *json.Decoder) (*jsonNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &jsonNode{kind: jsonObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				n.members = append(n.members, jsonMember{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return n, nil
		case '[':
			n := &jsonNode{kind: jsonArray}
			for dec.More() {
				elem, err := readJSONValue(dec)
				if err != nil {
					return nil, err
				}
				n.elems = append(n.elems, elem)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return &jsonNode{kind: jsonString, str: t}, nil
	case json.Number:
		return &jsonNode{kind: jsonLiteral, lit: t.String()}, nil
	case bool:
		return &jsonNode{kind: jsonLiteral, lit: strconv.FormatBool(t)}, nil
	case nil:
		return &jsonNode{kind: jsonLiteral, lit: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func (d *jsonDocument) Format() Format { return FormatJSON }

func (d *jsonDocument) Transform(fn LeafFunc) error {
	return d.root.transform("$", fn)
}

func (n *jsonNode) transform(path string, fn LeafFunc) error {
	switch n.kind {
	case jsonObject:
		for i := range n.members {
			childPath := path + "." + n.members[i].key
			if err := n.members[i].val.transform(childPath, fn); err != nil {
				return err
			}
		}
	case jsonArray:
		for i, elem := range n.elems {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if err := elem.transform(childPath, fn); err != nil {
				return err
			}
		}
	case jsonString:
		out, err := fn(path, n.str)
		if err != nil {
			return err
		}
		n.str = out
	}
	return nil
}

const jsonIndent = "    "

func (d *jsonDocument) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.root.encode(&buf, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (n *jsonNode) encode(buf *bytes.Buffer, depth int) error {
	switch n.kind {
	case jsonObject:
		if len(n.members) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		for i, m := range n.members {
			writeIndent(buf, depth+1)
			key, err := json.Marshal(m.key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteString(": ")
			if err := m.val.encode(buf, depth+1); err != nil {
				return err
			}
			if i < len(n.members)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		writeIndent(buf, depth)
		buf.WriteByte('}')
	case jsonArray:
		if len(n.elems) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		for i, elem := range n.elems {
			writeIndent(buf, depth+1)
			if err := elem.encode(buf, depth+1); err != nil {
				return err
			}
			if i < len(n.elems)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		writeIndent(buf, depth)
		buf.WriteByte(']')
	case jsonString:
		s, err := json.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(s)
	case jsonLiteral:
		buf.WriteString(n.lit)
	}
	return nil
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString(jsonIndent)
	}
}
