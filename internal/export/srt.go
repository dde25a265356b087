// Package export renders finished-job data into download formats.
package export

import (
	"fmt"
	"strings"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

// GenerateSRT renders the absolute caption timeline of a video as SubRip.
// Cues are grouped into lines of at most maxWords tokens; a scene boundary
// always starts a new cue.
func GenerateSRT(scenes []video.SceneSummary, maxWords int) string {
	if maxWords <= 0 {
		maxWords = 1
	}

	var b strings.Builder
	cue := 0
	for _, scene := range scenes {
		for start := 0; start < len(scene.Captions); start += maxWords {
			end := min(start+maxWords, len(scene.Captions))
			group := scene.Captions[start:end]

			words := make([]string, len(group))
			for i, c := range group {
				words[i] = c.Text
			}

			cue++
			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
				cue,
				msToSRTTime(group[0].StartMs),
				msToSRTTime(group[len(group)-1].EndMs),
				strings.Join(words, " "),
			)
		}
	}
	return b.String()
}

func msToSRTTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	millis := ms % 1000
	totalSeconds := ms / 1000
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
