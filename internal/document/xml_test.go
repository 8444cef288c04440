package document

import (
	"strings"
	"testing"
)

func TestXML_WalkTextAndAttributes(t *testing.T) {
	input := `<people><person id="p1">Jane Doe</person><person id="p2">John Roe</person></people>`
	doc, err := Parse([]byte(input), FormatXML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var visits []string
	err = doc.Transform(func(loc, text string) (string, error) {
		visits = append(visits, loc+"="+text)
		return text, nil
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	want := []string{
		"/people/person[1]/@id=p1",
		"/people/person[1]/text()=Jane Doe",
		"/people/person[2]/@id=p2",
		"/people/person[2]/text()=John Roe",
	}
	if len(visits) != len(want) {
		t.Fatalf("visits: got %v, want %v", visits, want)
	}
	for i := range want {
		if visits[i] != want[i] {
			t.Errorf("visit %d: got %q, want %q", i, visits[i], want[i])
		}
	}
}

func TestXML_TailTextWalked(t *testing.T) {
	// Text after a child element (tail content) is a separate leaf.
	input := `<note>before <b>bold</b> after</note>`
	doc, err := Parse([]byte(input), FormatXML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var texts []string
	doc.Transform(func(loc, text string) (string, error) { //nolint:errcheck // fn never errors
		texts = append(texts, text)
		return text, nil
	})

	joined := strings.Join(texts, "|")
	for _, want := range []string{"before ", "bold", " after"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing leaf %q in %q", want, joined)
		}
	}
}

func TestXML_TransformReplacesLeaves(t *testing.T) {
	input := `<doc owner="alice"><msg>hello</msg></doc>`
	doc, err := Parse([]byte(input), FormatXML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := doc.Transform(func(loc, text string) (string, error) {
		return strings.ToUpper(text), nil
	}); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	out, _ := doc.Encode()
	s := string(out)
	if !strings.Contains(s, `owner="ALICE"`) {
		t.Errorf("attribute not replaced:\n%s", s)
	}
	if !strings.Contains(s, ">HELLO<") {
		t.Errorf("text not replaced:\n%s", s)
	}
}

func TestXML_StructurePreserved(t *testing.T) {
	input := `<?xml version="1.0"?><catalog><!-- inventory --><item sku="a1"><name>Widget</name><qty>3</qty></item><item sku="b2"/></catalog>`
	doc, err := Parse([]byte(input), FormatXML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	s := string(out)
	if !strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("declaration missing:\n%s", s)
	}
	if !strings.Contains(s, "<!-- inventory -->") {
		t.Errorf("comment lost:\n%s", s)
	}
	if strings.Index(s, "<name>") > strings.Index(s, "<qty>") {
		t.Errorf("element order changed:\n%s", s)
	}
	if !strings.Contains(s, `<item sku="b2"/>`) {
		t.Errorf("empty element mangled:\n%s", s)
	}

	// Re-parse the output: same leaf sequence.
	doc2, err := Parse(out, FormatXML)
	if err != nil {
		t.Fatalf("re-Parse: %v", err)
	}
	out2, err := doc2.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if string(out) != string(out2) {
		t.Errorf("round trip not stable:\nfirst:\n%s\nsecond:\n%s", out, out2)
	}
}

func TestXML_EscapingRoundTrip(t *testing.T) {
	input := `<doc attr="a&amp;b">1 &lt; 2 &amp; 3</doc>`
	doc, err := Parse([]byte(input), FormatXML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var leaf string
	doc.Transform(func(loc, text string) (string, error) { //nolint:errcheck // fn never errors
		if strings.HasSuffix(loc, "text()") {
			leaf = text
		}
		return text, nil
	})
	if leaf != "1 < 2 & 3" {
		t.Errorf("decoded text: got %q", leaf)
	}

	out, _ := doc.Encode()
	if _, err := Parse(out, FormatXML); err != nil {
		t.Errorf("re-encoded output not well-formed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "&amp;") {
		t.Errorf("ampersand not re-escaped:\n%s", out)
	}
}

func TestXML_PrefixedAttributesStayWellFormed(t *testing.T) {
	input := `<doc xmlns:m="urn:meta" m:owner="jane" xml:lang="en"><v>x</v></doc>`
	doc, err := Parse([]byte(input), FormatXML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	s := string(out)
	// The decoder replaces the m: prefix with its URL; that must never be
	// written back as an attribute-name prefix.
	if strings.Contains(s, "urn:meta:owner") {
		t.Errorf("namespace URL leaked into attribute name:\n%s", s)
	}
	if !strings.Contains(s, `owner="jane"`) {
		t.Errorf("attribute value lost:\n%s", s)
	}
	if !strings.Contains(s, `xml:lang="en"`) {
		t.Errorf("xml: binding not preserved:\n%s", s)
	}
	if _, err := Parse(out, FormatXML); err != nil {
		t.Errorf("re-encoded output not well-formed: %v\n%s", err, out)
	}
}

func TestXML_MalformedInputFails(t *testing.T) {
	cases := []string{
		`<open>`,
		`<a></b>`,
		`no markup at all`,
		`<a/><b/>`,
		``,
	}
	for _, input := range cases {
		if _, err := Parse([]byte(input), FormatXML); err == nil {
			t.Errorf("expected parse error for %q", input)
		}
	}
}
