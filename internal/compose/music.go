package compose

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

// CatalogFilename is the track index read from the music directory.
const CatalogFilename = "catalog.json"

// ErrNoMusic is returned by Select when the library has no tracks.
var ErrNoMusic = errors.New("music library is empty")

// MusicLibrary is the background music catalog of one music directory.
type MusicLibrary struct {
	dir    string
	tracks []video.MusicTrack
}

// LoadMusicLibrary reads dir/catalog.json. A missing catalog yields an empty
// library; entries with unknown moods, missing files or empty spans are
// skipped with a warning.
func LoadMusicLibrary(dir string, logger *slog.Logger) (*MusicLibrary, error) {
	lib := &MusicLibrary{dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, CatalogFilename))
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("no music catalog found, videos will have no background music", "dir", dir)
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read music catalog: %w", err)
	}

	var entries []video.MusicTrack
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse music catalog: %w", err)
	}

	lib.tracks = lo.Filter(entries, func(t video.MusicTrack, _ int) bool {
		switch {
		case t.File == "" || filepath.Base(t.File) != t.File:
			logger.Warn("skipping music track with invalid file", "id", t.ID, "file", t.File)
			return false
		case !video.IsMood(t.Mood):
			logger.Warn("skipping music track with unknown mood", "id", t.ID, "mood", t.Mood)
			return false
		case t.SpanMs() <= 0:
			logger.Warn("skipping music track with empty span", "id", t.ID)
			return false
		}
		return true
	})
	lib.tracks = lo.Map(lib.tracks, func(t video.MusicTrack, _ int) video.MusicTrack {
		if t.ID == "" {
			t.ID = t.File
		}
		return t
	})

	logger.Info("music catalog loaded", "dir", dir, "tracks", len(lib.tracks))
	return lib, nil
}

// NewMusicLibrary builds a library from an in-memory track list.
func NewMusicLibrary(dir string, tracks []video.MusicTrack) *MusicLibrary {
	return &MusicLibrary{dir: dir, tracks: append([]video.MusicTrack(nil), tracks...)}
}

func (l *MusicLibrary) Tracks() []video.MusicTrack {
	return append([]video.MusicTrack(nil), l.tracks...)
}

// Path returns the file backing t.
func (l *MusicLibrary) Path(t video.MusicTrack) string {
	return filepath.Join(l.dir, t.File)
}

// Moods lists the moods that have at least one track.
func (l *MusicLibrary) Moods() []video.MusicMood {
	return lo.Uniq(lo.Map(l.tracks, func(t video.MusicTrack, _ int) video.MusicMood { return t.Mood }))
}

// Select picks a random track of mood whose span covers requiredMs. When
// none is long enough the longest candidate is returned with Loop set. An
// empty mood, or a mood without tracks, considers the whole library.
func (l *MusicLibrary) Select(mood video.MusicMood, requiredMs int64, pick func(n int) int) (video.MusicSelection, error) {
	if len(l.tracks) == 0 {
		return video.MusicSelection{}, ErrNoMusic
	}

	candidates := l.tracks
	if mood != "" {
		if byMood := lo.Filter(l.tracks, func(t video.MusicTrack, _ int) bool { return t.Mood == mood }); len(byMood) > 0 {
			candidates = byMood
		}
	}

	fitting := lo.Filter(candidates, func(t video.MusicTrack, _ int) bool { return t.SpanMs() >= requiredMs })
	if len(fitting) > 0 {
		return video.MusicSelection{Track: fitting[pick(len(fitting))]}, nil
	}

	longest := lo.MaxBy(candidates, func(a, b video.MusicTrack) bool { return a.SpanMs() > b.SpanMs() })
	return video.MusicSelection{Track: longest, Loop: true}, nil
}
