package domain

import (
	"fmt"
	"strings"
)

// AudioFormat is a supported output container.
type AudioFormat string

const (
	FormatMP3  AudioFormat = "mp3"
	FormatWAV  AudioFormat = "wav"
	FormatFLAC AudioFormat = "flac"
	FormatOGG  AudioFormat = "ogg"
	FormatM4A  AudioFormat = "m4a"
	FormatOpus AudioFormat = "opus"
)

// SupportedFormats lists every format the transcoder can produce, in display order.
var SupportedFormats = []AudioFormat{FormatMP3, FormatWAV, FormatFLAC, FormatOGG, FormatM4A, FormatOpus}

// ParseFormat normalizes s and checks it against SupportedFormats.
func ParseFormat(s string) (AudioFormat, error) {
	f := AudioFormat(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range SupportedFormats {
		if f == supported {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// FormatNames returns the formats as plain strings.
func FormatNames(formats []AudioFormat) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}

// ContentType returns the MIME type used when serving or uploading the format.
func (f AudioFormat) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatFLAC:
		return "audio/flac"
	case FormatOGG:
		return "audio/ogg"
	case FormatM4A:
		return "audio/mp4"
	case FormatOpus:
		return "audio/opus"
	default:
		return "application/octet-stream"
	}
}

// SupportsCoverArt reports whether the container can carry an attached picture.
func (f AudioFormat) SupportsCoverArt() bool {
	switch f {
	case FormatMP3, FormatFLAC, FormatM4A:
		return true
	}
	return false
}
