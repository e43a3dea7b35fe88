package recording

import (
	"fmt"
	"strings"
	"time"
)

// DefaultArtifactPrefix is the file name prefix for downloaded recordings.
const DefaultArtifactPrefix = "screen-recording"

// fileTimestamp sorts lexically in chronological order and avoids characters
// that are invalid in file names.
const fileTimestamp = "2006-01-02T15-04-05.000Z"

// FileName builds "<prefix>-<timestamp>.<ext>" for a recording of mediaType
// finished at t.
func FileName(prefix string, t time.Time, mediaType string) string {
	if prefix == "" {
		prefix = DefaultArtifactPrefix
	}
	return fmt.Sprintf("%s-%s.%s", prefix, t.UTC().Format(fileTimestamp), Extension(mediaType))
}

// Extension returns the file extension for a negotiated media type.
func Extension(mediaType string) string {
	base, _, _ := strings.Cut(mediaType, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "video/webm", "audio/webm":
		return "webm"
	case "video/mp4", "audio/mp4":
		return "mp4"
	case "video/x-matroska":
		return "mkv"
	default:
		return "bin"
	}
}

// ContainerType strips codec parameters from a media type.
func ContainerType(mediaType string) string {
	base, _, _ := strings.Cut(mediaType, ";")
	return strings.TrimSpace(base)
}
