package track

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_DisplayTitle(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "title tag set",
			track:    Track{Path: "/music/01 Opening.vgm", Info: Info{Title: "Opening Theme"}},
			expected: "Opening Theme",
		},
		{
			name:     "falls back to file name",
			track:    Track{Path: "/music/01 Opening.vgm"},
			expected: "01 Opening",
		},
		{
			name:     "no extension",
			track:    New("jingle"),
			expected: "jingle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.DisplayTitle())
		})
	}
}

func TestFindCoverArt(t *testing.T) {
	touch := func(t *testing.T, path string) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte{0}, 0o644))
	}

	t.Run("empty path", func(t *testing.T) {
		assert.Equal(t, "", FindCoverArt(""))
	})

	t.Run("nothing found", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, "", FindCoverArt(filepath.Join(dir, "song.vgm")))
	})

	t.Run("directory image", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "cover.jpg"))
		assert.Equal(t, filepath.Join(dir, "cover.jpg"), FindCoverArt(filepath.Join(dir, "song.vgm")))
	})

	t.Run("track image takes precedence", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "cover.jpg"))
		touch(t, filepath.Join(dir, "song.png"))
		assert.Equal(t, filepath.Join(dir, "song.png"), FindCoverArt(filepath.Join(dir, "song.vgm")))
	})

	t.Run("directories are skipped", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "cover.png"), 0o755))
		touch(t, filepath.Join(dir, "folder.jpg"))
		assert.Equal(t, filepath.Join(dir, "folder.jpg"), FindCoverArt(filepath.Join(dir, "song.vgm")))
	})
}
