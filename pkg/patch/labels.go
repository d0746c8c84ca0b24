package patch

import (
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/image-tiler/pkg/types"
)

// LabelLines renders one line per annotation:
//
//	cat x1 y1 x2 y2 x3 y3 x4 y4
//
// Coordinates are divided by the patch width and height and clamped to [0, 1].
func LabelLines(rec types.PatchRecord) []string {
	lines := make([]string, 0, len(rec.Annotations))
	for _, ann := range rec.Annotations {
		var sb strings.Builder
		sb.WriteString(strconv.Itoa(ann.CategoryID))
		for _, pt := range ann.Polygon {
			sb.WriteByte(' ')
			sb.WriteString(formatCoord(normalize(pt.X, rec.Width)))
			sb.WriteByte(' ')
			sb.WriteString(formatCoord(normalize(pt.Y, rec.Height)))
		}
		lines = append(lines, sb.String())
	}
	return lines
}

// LabelFile returns the label file content for rec. A patch without
// annotations yields an empty file.
func LabelFile(rec types.PatchRecord) []byte {
	lines := LabelLines(rec)
	if len(lines) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func normalize(v float64, size int) float64 {
	if size <= 0 {
		return 0
	}
	n := v / float64(size)
	if n < 0 || math.IsNaN(n) {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
