package source

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyURL      = errors.New("url is required")
	ErrInvalidURL    = errors.New("not a valid YouTube video url")
	ErrCollectionURL = errors.New("playlists are not supported, enter the url of a single video")
)

// videoURLPattern accepts watch, short, embed and youtu.be links to a single
// 11 character video id.
var videoURLPattern = regexp.MustCompile(
	`^(https?://)?((www|m|music)\.)?(youtube|youtu|youtube-nocookie)\.(com|be)/` +
		`(watch\?v=|embed/|v/|shorts/|live/|.+\?v=)?([^&=%?/]{11})`,
)

// IsCollectionURL reports whether raw points at a playlist page rather than
// a video. Watch URLs that merely carry a list parameter are not collections.
func IsCollectionURL(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "/playlist")
}

// ValidateURL checks that raw names a single supported video.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrEmptyURL
	}
	if IsCollectionURL(raw) {
		return ErrCollectionURL
	}
	if !videoURLPattern.MatchString(raw) {
		return ErrInvalidURL
	}
	return nil
}
