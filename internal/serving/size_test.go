package serving

import (
	"strconv"
	"strings"
	"testing"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{1, "1.0 B"},
		{512, "512.0 B"},
		{1023, "1023.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1280, "1.3 KB"},
		{3328, "3.3 KB"},
		{1075, "1.0 KB"},
		{1076, "1.1 KB"},
		{1047552, "1023.0 KB"},
		{1048575, "1024.0 KB"},
		{1310720, "1.3 MB"},
		{1835008, "1.8 MB"},
		{1048576, "1.0 MB"},
		{9 * 1024 * 1024, "9.0 MB"},
		{9*1024*1024 + 1, "9.0 MB"},
		{1073741824, "1.0 GB"},
		{5 * 1024 * 1024 * 1024 * 1024, "5120.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func unitRank(s string) (int, float64) {
	parts := strings.SplitN(s, " ", 2)
	v, _ := strconv.ParseFloat(parts[0], 64)
	for i, u := range sizeUnits {
		if u == parts[1] {
			return i, v
		}
	}
	return -1, v
}

func TestFormatSizeMonotonic(t *testing.T) {
	var samples []int64
	for p := int64(1); p <= 1<<40; p *= 1024 {
		for _, d := range []int64{-2, -1, 0, 1, 2} {
			if p+d >= 0 {
				samples = append(samples, p+d)
			}
		}
		samples = append(samples, p*512, p*1000, p*1023)
	}
	for b := int64(0); b < 5000; b += 7 {
		samples = append(samples, b)
	}

	for _, a := range samples {
		for _, b := range []int64{a + 1, a + 1024, a * 2} {
			ua, va := unitRank(FormatSize(a))
			ub, vb := unitRank(FormatSize(b))
			if ub < ua || (ub == ua && vb < va) {
				t.Fatalf("FormatSize not monotonic: %d -> %q, %d -> %q", a, FormatSize(a), b, FormatSize(b))
			}
		}
	}
}
