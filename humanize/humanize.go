// Package humanize formats byte counts for display, using binary units.
package humanize

import "fmt"

var units = []string{"KiB", "MiB", "GiB", "TiB", "PiB"}

// Bytes formats bytes with the largest unit it exceeds, e.g. "512 B",
// "1.5 MiB" or "2 TiB". Whole values are printed without decimals.
func Bytes(bytes uint64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	val := float64(bytes) / 1024
	unit := units[0]
	for _, u := range units[1:] {
		if val < 1024 {
			break
		}
		val /= 1024
		unit = u
	}
	if val == float64(uint64(val)) {
		return fmt.Sprintf("%d %s", uint64(val), unit)
	}
	return fmt.Sprintf("%.1f %s", val, unit)
}
