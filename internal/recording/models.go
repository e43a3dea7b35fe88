package recording

import (
	"time"
)

// State is the lifecycle state of a recording session.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateError      State = "error"
)

// active reports whether a session in this state owns a capture attempt.
func (s State) active() bool {
	switch s {
	case StateRequesting, StateRecording, StateStopping, StateProcessing:
		return true
	}
	return false
}

// Quality names a recording quality preset.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality converts a user supplied name into a Quality.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(s); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	}
	return "", ErrUnknownQuality
}

// Profile holds the encoder parameters of a quality preset.
type Profile struct {
	VideoBitrate int `json:"video_bitrate" yaml:"video_bitrate"`
	AudioBitrate int `json:"audio_bitrate" yaml:"audio_bitrate"`
	Width        int `json:"width" yaml:"width"`
	Height       int `json:"height" yaml:"height"`
	FrameRate    int `json:"frame_rate" yaml:"frame_rate"`
}

// Settings are the user selectable recording options.
type Settings struct {
	Quality      Quality `json:"quality"`
	IncludeAudio bool    `json:"include_audio"`
}

// DefaultSettings matches the recorder's initial selection.
func DefaultSettings() Settings {
	return Settings{Quality: QualityHigh, IncludeAudio: true}
}

// PreferredMediaTypes is the negotiation order offered to capture backends.
var PreferredMediaTypes = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm;codecs=h264,opus",
	"video/mp4;codecs=h264,aac",
	"video/mp4;codecs=avc1.42E01E,mp4a.40.2",
	"video/webm",
}

// Constraints are the negotiated parameters handed to an Acquirer when a
// recording starts. They are fixed for the lifetime of that recording.
type Constraints struct {
	Quality      Quality
	Profile      Profile
	IncludeAudio bool
	MediaTypes   []string
}

// Artifact is the assembled recording.
type Artifact struct {
	ID        string        `json:"id"`
	Handle    Handle        `json:"handle"`
	MediaType string        `json:"media_type"`
	Data      []byte        `json:"-"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	return len(a.Data)
}
