package utils

import (
	"github.com/dustin/go-humanize"
)

// ConvertBytesToHumanReadable formats a byte count using binary units (KiB, MiB, ...).
func ConvertBytesToHumanReadable(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
