package serving

import "strconv"

var sizeUnits = [...]string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count as "<value with one decimal> <unit>" using
// 1024-based units, e.g. 1024 -> "1.0 KB". Zero and negative sizes are "0 B".
// Halves round up, so 1280 is "1.3 KB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	// floor(log1024(bytes)) with integer comparisons, so exact powers of
	// 1024 land in the higher unit.
	i := 0
	div := int64(1)
	for i < len(sizeUnits)-1 && bytes >= div*1024 {
		div *= 1024
		i++
	}

	// Tenths of a unit, rounded half up in exact integer arithmetic.
	whole, rem := bytes/div, bytes%div
	tenths := whole*10 + (rem*10+div/2)/div

	return strconv.FormatInt(tenths/10, 10) + "." + strconv.FormatInt(tenths%10, 10) + " " + sizeUnits[i]
}
