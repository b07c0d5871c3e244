package analyzer

import (
	"fmt"
	"reflect"
	"testing"

	"codedocs/internal/fileset"
)

func TestExtractColorsDeterministic(t *testing.T) {
	fs := fileset.FileSet{
		"styles/main.css": ".a { color: #FF0000; } .b { color: #f00; } .c { background: rgb(0, 128, 255); }",
		"app.py":          "# color: #123456 ignored, not a style file",
	}

	first := ExtractColors(fs)
	if first.Source != "static" {
		t.Fatalf("source = %s", first.Source)
	}
	// #f00 expands to #FF0000 and merges with the six-digit form.
	if len(first.Colors) != 2 {
		t.Fatalf("colors = %+v", first.Colors)
	}
	if first.Colors[0].Hex != "#FF0000" || first.Colors[0].Frequency != 2 {
		t.Fatalf("top color = %+v", first.Colors[0])
	}
	if first.Colors[1].Hex != "#0080FF" {
		t.Fatalf("rgb color = %+v", first.Colors[1])
	}

	for i := 0; i < 10; i++ {
		if got := ExtractColors(fs); !reflect.DeepEqual(got, first) {
			t.Fatalf("nondeterministic extraction: %+v vs %+v", got, first)
		}
	}
}

func TestExtractColorsCapped(t *testing.T) {
	css := ""
	for i := 0; i < 30; i++ {
		css += fmt.Sprintf(".c%d { color: #0000%02x; }\n", i, i)
	}
	palette := ExtractColors(fileset.FileSet{"a.css": css})
	if len(palette.Colors) != maxPaletteColors {
		t.Fatalf("got %d colors, want %d", len(palette.Colors), maxPaletteColors)
	}
}
