package document

import (
	"strings"
	"testing"
)

func TestDetectFormat_ByExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     Format
	}{
		{"data.json", FormatJSON},
		{"data.JSON", FormatJSON},
		{"data.xml", FormatXML},
		{"page.html", FormatXML},
	}
	for _, c := range cases {
		if got := DetectFormat(c.filename, []byte("whatever")); got != c.want {
			t.Errorf("DetectFormat(%q): got %v, want %v", c.filename, got, c.want)
		}
	}
}

func TestDetectFormat_ByContent(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Format
	}{
		{"json object", `{"a": 1}`, FormatJSON},
		{"json array", `[1, 2]`, FormatJSON},
		{"xml", `<root><a>x</a></root>`, FormatXML},
		{"plain", "just some words", FormatText},
		{"empty", "", FormatText},
		{"whitespace", "   \n\t ", FormatText},
	}
	for _, c := range cases {
		if got := DetectFormat("", []byte(c.data)); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDetectFormat_ExtensionBeatsContent(t *testing.T) {
	// A .xml filename wins even when the content would parse as JSON.
	if got := DetectFormat("data.xml", []byte(`{"a": 1}`)); got != FormatXML {
		t.Errorf("got %v, want xml", got)
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	if _, err := Parse([]byte("x"), Format("yaml")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTextDocument_SingleLeaf(t *testing.T) {
	doc, err := Parse([]byte("hello world"), FormatText)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var locs []string
	err = doc.Transform(func(loc, text string) (string, error) {
		locs = append(locs, loc)
		return strings.ToUpper(text), nil
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(locs) != 1 || locs[0] != "$" {
		t.Errorf("locations: got %v, want [$]", locs)
	}

	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != "HELLO WORLD" {
		t.Errorf("Encode: got %q", out)
	}
}
