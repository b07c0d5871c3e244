package analyzer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"codedocs/internal/fileset"
)

// Palette is the static color extraction result for the optional
// color-analysis stage.
type Palette struct {
	Colors []ColorUsage `json:"colors"`
	Source string       `json:"source"`
}

type ColorUsage struct {
	Hex       string `json:"hex"`
	Frequency int    `json:"frequency"`
}

const maxPaletteColors = 12

var (
	reHexColor = regexp.MustCompile(`#([0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})\b`)
	reRGBColor = regexp.MustCompile(`rgba?\s*\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)
)

var styleExtensions = map[string]struct{}{
	".css": {}, ".scss": {}, ".sass": {}, ".less": {}, ".html": {},
}

// ExtractColors collects hex and rgb() colors from style files and ranks
// them by frequency. Deterministic; ties break on hex value.
func ExtractColors(fs fileset.FileSet) Palette {
	counts := make(map[string]int)
	for _, path := range fs.SortedPaths() {
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := styleExtensions[ext]; !ok {
			continue
		}
		for _, hex := range extractFileColors(fs[path]) {
			counts[hex]++
		}
	}

	colors := make([]ColorUsage, 0, len(counts))
	for hex, n := range counts {
		colors = append(colors, ColorUsage{Hex: hex, Frequency: n})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Frequency != colors[j].Frequency {
			return colors[i].Frequency > colors[j].Frequency
		}
		return colors[i].Hex < colors[j].Hex
	})
	if len(colors) > maxPaletteColors {
		colors = colors[:maxPaletteColors]
	}
	return Palette{Colors: colors, Source: "static"}
}

func extractFileColors(content string) []string {
	var colors []string

	for _, m := range reHexColor.FindAllStringSubmatch(content, -1) {
		hex := m[1]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		colors = append(colors, "#"+strings.ToUpper(hex))
	}

	for _, m := range reRGBColor.FindAllStringSubmatch(content, -1) {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		if r > 255 || g > 255 || b > 255 {
			continue
		}
		colors = append(colors, fmt.Sprintf("#%02X%02X%02X", r, g, b))
	}
	return colors
}
