package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a single-range Range header against a resource of size
// bytes. Only the first range of a multi-range request is honored. An empty
// header yields ok=false and no error.
func ParseRange(header string, size int64) (r Range, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Range{}, false, nil
	}

	rangeSet, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return Range{}, false, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(rangeSet, ","); multi {
		rangeSet = first
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !found {
		return Range{}, false, ErrInvalidRange
	}

	if startStr == "" {
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return Range{}, false, ErrInvalidRange
		}
		if size == 0 {
			return Range{}, false, ErrUnsatisfiable
		}
		return Range{Start: max(size-suffix, 0), End: size - 1}, true, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Range{}, false, ErrInvalidRange
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Range{}, false, ErrInvalidRange
		}
	}

	if start > end || start >= size {
		return Range{}, false, ErrUnsatisfiable
	}
	return Range{Start: start, End: min(end, size-1)}, true, nil
}
