package audio

import "strings"

// MediaKind classifies an upload by its file extension.
type MediaKind int

const (
	MediaUnsupported MediaKind = iota
	MediaAudio
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	default:
		return "unsupported"
	}
}

// AudioExtensions and VideoExtensions are the upload formats we accept.
var (
	AudioExtensions = []string{"mp3", "wav", "flac", "m4a", "aac", "ogg", "wma"}
	VideoExtensions = []string{"mp4", "mkv", "mov", "avi", "webm", "flv", "wmv"}
)

// NormalizeExtension lower-cases ext and strips a leading dot.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ClassifyExtension reports whether ext is a supported audio or video format.
func ClassifyExtension(ext string) MediaKind {
	ext = NormalizeExtension(ext)
	for _, e := range AudioExtensions {
		if e == ext {
			return MediaAudio
		}
	}
	for _, e := range VideoExtensions {
		if e == ext {
			return MediaVideo
		}
	}
	return MediaUnsupported
}

// IsSupported reports whether an upload with ext is accepted.
func IsSupported(ext string) bool {
	return ClassifyExtension(ext) != MediaUnsupported
}

// NeedsNormalization is true for every supported format except mp3.
func NeedsNormalization(ext string) bool {
	ext = NormalizeExtension(ext)
	return ext != "mp3" && IsSupported(ext)
}

// ContentType returns the MIME type for an audio extension.
func ContentType(ext string) string {
	switch NormalizeExtension(ext) {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "ogg":
		return "audio/ogg"
	case "m4a", "aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
