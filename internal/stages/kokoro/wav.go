package kokoro

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// WAVDuration reads the fmt and data chunks of a RIFF/WAVE buffer and
// returns the playback length.
func WAVDuration(b []byte) (time.Duration, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0, errNotWAV
	}

	var byteRate uint32
	var dataSize int64 = -1
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int64(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if body+12 > len(b) {
				return 0, fmt.Errorf("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(b[body+8 : body+12])
		case "data":
			dataSize = size
			// Streaming encoders write 0 or 0xFFFFFFFF when the size is unknown.
			if size == 0 || size == 0xFFFFFFFF || int64(body)+size > int64(len(b)) {
				dataSize = int64(len(b) - body)
			}
		}
		if dataSize >= 0 && byteRate > 0 {
			break
		}

		next := int64(body) + size
		if size%2 == 1 {
			next++
		}
		if next <= int64(off) || next > int64(len(b)) {
			break
		}
		off = int(next)
	}

	if byteRate == 0 {
		return 0, fmt.Errorf("missing or invalid fmt chunk")
	}
	if dataSize < 0 {
		return 0, fmt.Errorf("missing data chunk")
	}
	return time.Duration(dataSize * int64(time.Second) / int64(byteRate)), nil
}
