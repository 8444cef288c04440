// Package document parses JSON, XML, and plain-text payloads into a
// traversable tree, visits every text-bearing leaf in document order, and
// re-encodes the structure in its original shape.
//
// The traversal contract is the foundation the anonymization engine builds
// on: Transform hands each leaf's text to a callback together with a stable
// location string, and splices the callback's return value back into the
// tree. Structure (key order, element order, attributes) is never changed
// by the walk itself.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Format identifies the shape of a parsed document.
type Format string

// Supported input formats.
const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatText Format = "text"
)

// LeafFunc is called for every text leaf. location identifies the leaf
// within the document ($.a.b[0] for JSON, /root/item[2]/@id or .../text()
// for XML, $ for plain text). The returned string replaces the leaf's text.
type LeafFunc func(location, text string) (string, error)

// Document is a parsed payload whose text leaves can be rewritten in place.
type Document interface {
	// Format returns the format the document was parsed as.
	Format() Format

	// Transform visits every text leaf in document order and replaces each
	// leaf with fn's return value. The first error from fn aborts the walk.
	Transform(fn LeafFunc) error

	// Encode reassembles the document, preserving the original structural
	// shape (key order for objects, node order and attributes for XML).
	Encode() ([]byte, error)
}

// ErrUnknownFormat is returned by Parse for a format outside the enum.
var ErrUnknownFormat = errors.New("document: unknown format")

// Parse parses data as the given format. Malformed input fails fast with a
// parse error; no partial document is returned.
func Parse(data []byte, format Format) (Document, error) {
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatXML:
		return parseXML(data)
	case FormatText:
		return &textDocument{text: string(data)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// DetectFormat infers the document format from the filename extension first,
// then by attempting to parse the content as JSON and XML. Anything else is
// treated as plain text (a single leaf).
func DetectFormat(filename string, data []byte) Format {
	if filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".json":
			return FormatJSON
		case ".xml", ".html":
			return FormatXML
		}
	}

	trimmed := bytes.TrimLeftFunc(data, unicode.IsSpace)
	if len(trimmed) == 0 {
		return FormatText
	}

	if json.Valid(bytes.TrimSpace(data)) {
		return FormatJSON
	}
	if _, err := parseXML(data); err == nil {
		return FormatXML
	}
	return FormatText
}

// --- plain text -----------------------------------------------------------

// textDocument treats the whole payload as a single leaf at location "$".
type textDocument struct {
	text string
}

func (d *textDocument) Format() Format { return FormatText }

func (d *textDocument) Transform(fn LeafFunc) error {
	out, err := fn("$", d.text)
	if err != nil {
		return err
	}
	d.text = out
	return nil
}

func (d *textDocument) Encode() ([]byte, error) {
	return []byte(d.text), nil
}
