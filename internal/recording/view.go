package recording

import (
	"fmt"
	"time"
)

// Controls tells the view which user actions are currently allowed.
type Controls struct {
	Record   bool `json:"record"`
	Stop     bool `json:"stop"`
	Download bool `json:"download"`
	Settings bool `json:"settings"`
}

// ArtifactInfo describes the downloadable recording.
type ArtifactInfo struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	MediaType string `json:"media_type"`
	Chunks    int    `json:"chunks"`
}

// FailureInfo describes why the session is in Error.
type FailureInfo struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// View is the read-only projection of a session consumed by the UI.
type View struct {
	State             State         `json:"state"`
	StatusText        string        `json:"status_text"`
	ElapsedSeconds    int64         `json:"elapsed_seconds"`
	Timer             string        `json:"timer"`
	Progress          int           `json:"progress"`
	Settings          Settings      `json:"settings"`
	Controls          Controls      `json:"controls"`
	ArtifactAvailable bool          `json:"artifact_available"`
	Artifact          *ArtifactInfo `json:"artifact,omitempty"`
	Error             *FailureInfo  `json:"error,omitempty"`

	// Version increases with every transition.
	Version uint64 `json:"version"`
}

// Listener observes every published View.
type Listener interface {
	SessionChanged(v View)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(v View)

func (f ListenerFunc) SessionChanged(v View) { f(v) }

// ControlsFor returns the enabled controls for state s.
func ControlsFor(s State) Controls {
	switch s {
	case StateRecording:
		return Controls{Stop: true}
	case StateRequesting, StateStopping, StateProcessing:
		return Controls{}
	case StateReady:
		return Controls{Record: true, Download: true, Settings: true}
	default:
		return Controls{Record: true, Settings: true}
	}
}

// FormatTimer renders elapsed time as MM:SS. Minutes are not wrapped into hours.
func FormatTimer(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	secs := int64(elapsed / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
