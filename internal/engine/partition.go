package engine

import "github.com/datallboy/rangefetch/internal/domain"

// DefaultPacketSize is the window size used when none is configured.
const DefaultPacketSize = 64000

// Partition tiles [0, total) with packetSize windows in ascending order. The
// last window is shorter when total is not a multiple of packetSize.
func Partition(total uint32, packetSize int) []domain.Window {
	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}

	size := int64(packetSize)
	end := int64(total)
	windows := make([]domain.Window, 0, (end+size-1)/size)

	for start := int64(0); start < end; start += size {
		length := size
		if start+length > end {
			length = end - start
		}
		windows = append(windows, domain.Window{
			Index:  len(windows),
			Start:  start,
			Length: length,
		})
	}

	return windows
}
