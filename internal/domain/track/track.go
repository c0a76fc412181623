// Package track provides the Track domain entity.
package track

import (
	"os"
	"path/filepath"
	"strings"
)

// Info represents the metadata a decode engine reports for a loaded track.
type Info struct {
	Title      string // Track title
	Album      string // Game or album name
	System     string // Target system (e.g. "Sega Mega Drive")
	Artist     string // Composer
	Date       string // Release date
	Format     string // File format and version (e.g. "VGM 1.71", "WAV PCM16")
	Looping    bool   // Track has an authored loop point
	RawCapture bool   // Track lacks authored loop/fade metadata
}

// Track represents a playlist entry.
type Track struct {
	Path string // Source path handed to the decode engine
	Info Info   // Filled in once the track has been loaded
}

// New creates a track for the given source path.
func New(path string) Track {
	return Track{Path: path}
}

// DisplayTitle returns the title tag, or the file name when the tag is empty.
func (t *Track) DisplayTitle() string {
	if t.Info.Title != "" {
		return t.Info.Title
	}
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// coverArtNames are looked up in the track's directory when no image
// named after the track exists.
var coverArtNames = []string{"cover", "folder", "front", "album"}

var coverArtExts = []string{".png", ".jpg", ".jpeg"}

// FindCoverArt searches for an album image next to the track file.
// Images named after the track take precedence over directory-wide ones.
// Returns an empty string when nothing is found.
func FindCoverArt(path string) string {
	if path == "" {
		return ""
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	candidates := make([]string, 0, (len(coverArtNames)+1)*len(coverArtExts))
	for _, ext := range coverArtExts {
		candidates = append(candidates, base+ext)
	}
	for _, name := range coverArtNames {
		for _, ext := range coverArtExts {
			candidates = append(candidates, name+ext)
		}
	}

	for _, c := range candidates {
		p := filepath.Join(dir, c)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}
