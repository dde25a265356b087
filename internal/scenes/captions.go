package scenes

import (
	"sort"
	"strings"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

// NormalizeCaptions orders tokens by start time, removes overlaps, clamps
// them to [0, durationMs] and stretches the last token to the end of the
// narration. When alignment produced nothing the scene text becomes a single
// caption covering the whole narration.
func NormalizeCaptions(in []video.Caption, text string, durationMs int64) []video.Caption {
	tokens := make([]video.Caption, 0, len(in))
	for _, c := range in {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		tokens = append(tokens, c)
	}
	if len(tokens) == 0 {
		text = strings.TrimSpace(text)
		if text == "" || durationMs <= 0 {
			return []video.Caption{}
		}
		return []video.Caption{{Text: text, StartMs: 0, EndMs: durationMs}}
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].StartMs < tokens[j].StartMs
	})

	out := tokens[:0]
	var cursor int64
	for _, c := range tokens {
		c.StartMs = clamp(c.StartMs, cursor, durationMs)
		c.EndMs = clamp(c.EndMs, c.StartMs, durationMs)
		// Zero-length tokens at the very end cannot be shown; merge them
		// into the previous caption instead.
		if c.StartMs == c.EndMs && c.StartMs == durationMs && len(out) > 0 {
			out[len(out)-1].Text += " " + c.Text
			continue
		}
		out = append(out, c)
		cursor = c.EndMs
	}
	if len(out) > 0 && durationMs > 0 {
		out[len(out)-1].EndMs = durationMs
	}
	return out
}

func clamp(v, lo, hi int64) int64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
