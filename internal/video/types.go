// Package video holds the domain model shared by the short-video pipeline:
// submission inputs, render options, resolved per-scene artifacts and the
// error taxonomy.
package video

import "time"

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Dimensions returns the output frame size for the orientation. The same size
// is the minimum resolution accepted for stock footage.
func (o Orientation) Dimensions() (width, height int) {
	if o == OrientationLandscape {
		return 1920, 1080
	}
	return 1080, 1920
}

type CaptionPosition string

const (
	CaptionTop    CaptionPosition = "top"
	CaptionCenter CaptionPosition = "center"
	CaptionBottom CaptionPosition = "bottom"
)

type MusicVolume string

const (
	VolumeMuted  MusicVolume = "muted"
	VolumeLow    MusicVolume = "low"
	VolumeMedium MusicVolume = "medium"
	VolumeHigh   MusicVolume = "high"
)

// Gain returns the linear mix level for background music. Muted is exactly 0.
func (v MusicVolume) Gain() float64 {
	switch v {
	case VolumeMuted:
		return 0
	case VolumeLow:
		return 0.2
	case VolumeMedium:
		return 0.45
	default:
		return 0.7
	}
}

type MusicMood string

const (
	MoodSad           MusicMood = "sad"
	MoodMelancholic   MusicMood = "melancholic"
	MoodHappy         MusicMood = "happy"
	MoodEuphoric      MusicMood = "euphoric"
	MoodExcited       MusicMood = "excited"
	MoodChill         MusicMood = "chill"
	MoodUneasy        MusicMood = "uneasy"
	MoodAngry         MusicMood = "angry"
	MoodDark          MusicMood = "dark"
	MoodHopeful       MusicMood = "hopeful"
	MoodContemplative MusicMood = "contemplative"
	MoodFunny         MusicMood = "funny"
)

// Moods lists every accepted music mood in display order.
var Moods = []MusicMood{
	MoodSad, MoodMelancholic, MoodHappy, MoodEuphoric, MoodExcited, MoodChill,
	MoodUneasy, MoodAngry, MoodDark, MoodHopeful, MoodContemplative, MoodFunny,
}

type Voice string

const DefaultVoice Voice = "af_heart"

// Voices lists every accepted narration voice.
var Voices = []Voice{
	"af_heart", "af_alloy", "af_aoede", "af_bella", "af_jessica", "af_kore",
	"af_nicole", "af_nova", "af_river", "af_sarah", "af_sky",
	"am_adam", "am_echo", "am_eric", "am_fenrir", "am_liam", "am_michael",
	"am_onyx", "am_puck", "am_santa",
	"bf_emma", "bf_isabella", "bf_alice", "bf_lily",
	"bm_george", "bm_lewis", "bm_daniel", "bm_fable",
}

// SceneInput is one narration unit of a submission.
type SceneInput struct {
	Text        string   `json:"text" validate:"required"`
	SearchTerms []string `json:"searchTerms" validate:"required,min=1,dive,required"`
	Ordinal     int      `json:"-"`
}

// RenderConfig carries the per-job render options. Zero values are replaced
// by WithDefaults.
type RenderConfig struct {
	PaddingBackMs          int64           `json:"paddingBack,omitempty" validate:"gte=0,lte=60000"`
	Music                  MusicMood       `json:"music,omitempty" validate:"omitempty,mood"`
	CaptionPosition        CaptionPosition `json:"captionPosition,omitempty" validate:"omitempty,oneof=top center bottom"`
	CaptionBackgroundColor string          `json:"captionBackgroundColor,omitempty" validate:"omitempty,max=32,hexcolor|alpha"`
	Voice                  Voice           `json:"voice,omitempty" validate:"omitempty,voice"`
	Orientation            Orientation     `json:"orientation,omitempty" validate:"omitempty,oneof=portrait landscape"`
	MusicVolume            MusicVolume     `json:"musicVolume,omitempty" validate:"omitempty,oneof=muted low medium high"`
}

// WithDefaults returns a copy with every unset option filled in.
func (c RenderConfig) WithDefaults() RenderConfig {
	if c.CaptionPosition == "" {
		c.CaptionPosition = CaptionBottom
	}
	if c.CaptionBackgroundColor == "" {
		c.CaptionBackgroundColor = "blue"
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.Orientation == "" {
		c.Orientation = OrientationPortrait
	}
	if c.MusicVolume == "" {
		c.MusicVolume = VolumeHigh
	}
	return c
}

// Caption is one token of a caption track. Offsets are milliseconds.
type Caption struct {
	Text    string `json:"text"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

// AudioClip is an encoded audio buffer with its playback length.
type AudioClip struct {
	Data       []byte `json:"-"`
	DurationMs int64  `json:"durationMs"`
}

// FootageRef identifies one stock clip chosen for a scene.
type FootageRef struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	DurationMs int64  `json:"durationMs"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// ResolvedScene is a scene after every stage has produced its artifact.
type ResolvedScene struct {
	Ordinal int
	// Audio holds the delivery-format narration.
	Audio    AudioClip
	Captions []Caption
	Footage  FootageRef
	// DurationMs is the on-screen length of the scene, including trailing
	// padding when it is the last scene.
	DurationMs int64
}

// MusicTrack is an entry of the background music catalog.
type MusicTrack struct {
	ID      string    `json:"id"`
	File    string    `json:"file"`
	Mood    MusicMood `json:"mood"`
	StartMs int64     `json:"startMs"`
	EndMs   int64     `json:"endMs"`
}

// SpanMs returns the usable length of the track.
func (t MusicTrack) SpanMs() int64 {
	return t.EndMs - t.StartMs
}

// MusicSelection is the track picked for a job and whether it has to loop to
// cover the video.
type MusicSelection struct {
	Track MusicTrack
	Loop  bool
}

// SceneSummary records what a scene contributed to a finished video.
// Caption offsets are absolute within the final video.
type SceneSummary struct {
	Ordinal    int       `json:"ordinal"`
	FootageID  string    `json:"footageId"`
	StartMs    int64     `json:"startMs"`
	DurationMs int64     `json:"durationMs"`
	Captions   []Caption `json:"captions"`
}

// RenderResult describes a finished video artifact.
type RenderResult struct {
	Path       string         `json:"path"`
	DurationMs int64          `json:"durationMs"`
	SizeBytes  int64          `json:"sizeBytes"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	MusicID    string         `json:"musicId,omitempty"`
	Scenes     []SceneSummary `json:"scenes"`
	RenderedAt time.Time      `json:"renderedAt"`
}
