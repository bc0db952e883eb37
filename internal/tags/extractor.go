// Package tags defines the metadata extraction boundary for uploads.
// Real extraction (ID3, Vorbis comments, MP4 atoms) is an external
// collaborator behind the Extractor interface; this package owns the types
// and the filename fallback used when extraction fails.
package tags

import "context"

// Tags is a best-effort descriptive tag record for an audio payload.
// Zero values mean "unknown".
type Tags struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Composer    string `json:"composer,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	DiscNumber  int    `json:"disc_number,omitempty"`
}

// Properties are physical stream properties of an audio payload.
type Properties struct {
	// Duration in seconds.
	Duration float64 `json:"duration,omitempty"`

	// Bitrate in bits per second.
	Bitrate int `json:"bitrate,omitempty"`

	// SampleRate in Hz.
	SampleRate int `json:"sample_rate,omitempty"`

	// ChannelCount, e.g. 2 for stereo.
	ChannelCount int `json:"channel_count,omitempty"`
}

// Result bundles everything an extractor can learn from a payload.
type Result struct {
	Tags       Tags
	Properties Properties
}

// Extractor parses tags and physical properties out of raw audio bytes.
// Implementations may fail on malformed or unsupported input; callers must
// treat extraction as best-effort and never let a failure abort an upload.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*Result, error)
}
