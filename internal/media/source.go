package media

import (
	"path/filepath"
	"strings"
)

// Source is a read-only handle on a probed source video. It is shared by
// every segment extraction of a run and never modified by them.
type Source struct {
	Path       string
	Duration   float64 // seconds
	FormatName string  // ffprobe container name, e.g. "mov,mp4,m4a,3gp,3g2,mj2"
	Ext        string  // lowercase extension without the dot, e.g. "mp4"
	HasVideo   bool
	HasAudio   bool
	SizeBytes  int64
}

// NewSource builds a handle for a file whose duration is already known.
func NewSource(path string, duration float64) *Source {
	return &Source{
		Path:     path,
		Duration: duration,
		Ext:      extOf(path),
		HasVideo: true,
		HasAudio: true,
	}
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// supportedFormats lists the containers accepted for upload
var supportedFormats = []string{".mp4", ".mov", ".m4v", ".mkv", ".webm", ".avi"}

// ValidateVideoFormat checks if the file format is supported
func ValidateVideoFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// SupportedFormats returns the accepted video extensions
func SupportedFormats() []string {
	return append([]string(nil), supportedFormats...)
}

// DefaultExt is the clip container used when neither the file name nor
// ffprobe names one we can write
const DefaultExt = "mp4"

// containerExt picks an output extension from an ffprobe format name, for
// sources whose file name carries no usable extension (remote downloads)
func containerExt(formatName string) string {
	for _, name := range strings.Split(formatName, ",") {
		switch name {
		case "mp4", "mov":
			return "mp4"
		case "matroska":
			return "mkv"
		case "webm":
			return "webm"
		case "avi":
			return "avi"
		}
	}
	return DefaultExt
}
