package tags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Tags
	}{
		{
			name:     "track dash title",
			filename: "01 - Paranoid Android.mp3",
			want:     Tags{Title: "Paranoid Android", TrackNumber: 1},
		},
		{
			name:     "track dot title",
			filename: "07. Karma Police.flac",
			want:     Tags{Title: "Karma Police", TrackNumber: 7},
		},
		{
			name:     "track dot title no space",
			filename: "12.Let Down.ogg",
			want:     Tags{Title: "Let Down", TrackNumber: 12},
		},
		{
			name:     "artist dash title",
			filename: "Radiohead - No Surprises.mp3",
			want:     Tags{Artist: "Radiohead", Title: "No Surprises"},
		},
		{
			name:     "track number wins over artist form",
			filename: "02 - Airbag.mp3",
			want:     Tags{Title: "Airbag", TrackNumber: 2},
		},
		{
			name:     "no pattern falls back to raw title",
			filename: "lucky.mp3",
			want:     Tags{Title: "lucky"},
		},
		{
			name:     "path components stripped",
			filename: "/music/incoming/03 - Exit Music.m4a",
			want:     Tags{Title: "Exit Music", TrackNumber: 3},
		},
		{
			name:     "dash without surrounding spaces is not artist-title",
			filename: "self-titled.mp3",
			want:     Tags{Title: "self-titled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FromFilename(tt.filename))
		})
	}
}
