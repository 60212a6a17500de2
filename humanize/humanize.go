// Package humanize formats byte counts for people.
package humanize

import "fmt"

func Bytes(bytes uint64) string {
	switch {
	case bytes >= (1024 * 1024):
		return fmt.Sprintf("%.1f MiB", float64(bytes)/1024/1024)
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
