package tags

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Filename patterns, tried in order. The track-number forms win over the
// artist-title form so "01 - Intro" parses as track 1, not artist "01".
var (
	// "NN - Title" or "NN. Title"
	trackTitleRe = regexp.MustCompile(`^(\d{1,3})\s*(?:-|\.)\s*(.+)$`)

	// "Artist - Title"
	artistTitleRe = regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`)
)

// FromFilename derives tags from a filename when real extraction failed.
// Recognized patterns: "NN - Title", "NN. Title", "Artist - Title".
// Anything else becomes the title verbatim (minus the extension).
func FromFilename(filename string) Tags {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.TrimSpace(base)

	if m := trackTitleRe.FindStringSubmatch(base); m != nil {
		track, err := strconv.Atoi(m[1])
		if err == nil {
			return Tags{
				Title:       strings.TrimSpace(m[2]),
				TrackNumber: track,
			}
		}
	}

	if m := artistTitleRe.FindStringSubmatch(base); m != nil {
		return Tags{
			Artist: strings.TrimSpace(m[1]),
			Title:  strings.TrimSpace(m[2]),
		}
	}

	return Tags{Title: base}
}
