// Package playlist provides the Playlist domain entity.
package playlist

import "github.com/osa030/chipbox/internal/domain/track"

// Playlist represents the ordered list of tracks played by one session.
type Playlist struct {
	Name   string        // Playlist name (empty for ad-hoc file lists)
	Tracks []track.Track // Tracks in play order
}

// FromPaths creates a playlist from a list of source paths.
func FromPaths(name string, paths []string) *Playlist {
	tracks := make([]track.Track, len(paths))
	for i, p := range paths {
		tracks[i] = track.New(p)
	}
	return &Playlist{Name: name, Tracks: tracks}
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// At returns the track at index i.
func (p *Playlist) At(i int) (*track.Track, bool) {
	if i < 0 || i >= len(p.Tracks) {
		return nil, false
	}
	return &p.Tracks[i], true
}

// IsLast reports whether i is the index of the final track.
func (p *Playlist) IsLast(i int) bool {
	return i == len(p.Tracks)-1
}

// Paths returns all source paths in play order.
func (p *Playlist) Paths() []string {
	paths := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		paths[i] = t.Path
	}
	return paths
}
