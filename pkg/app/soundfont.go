package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zurustar/keyfall/pkg/fileutil"
	"github.com/zurustar/keyfall/pkg/synth"
)

// DefaultSoundFontName is the default SoundFont filename to search for.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// findSoundFont searches for a SoundFont file in the following order:
// 1. The path given with --soundfont
// 2. Current directory
// 3. The directory of the first song
// 4. The keyfall directory under the user config directory
//
// File names are matched case-insensitively. An explicit path that does not
// exist is an error; otherwise synth.ErrNoSoundFont reports that nothing was
// found.
func findSoundFont(explicit, songDir string) (string, error) {
	// 1. 明示的に指定されたパス
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", synth.ErrSoundFontNotFound, explicit)
		}
		return explicit, nil
	}

	dirs := []string{"."}
	if songDir != "" {
		dirs = append(dirs, songDir)
	}
	if configDir, err := os.UserConfigDir(); err == nil && configDir != "" {
		dirs = append(dirs, filepath.Join(configDir, "keyfall"))
	}

	for _, dir := range dirs {
		path, err := fileutil.FindFileCaseInsensitive(dir, DefaultSoundFontName)
		if err == nil {
			if dir == "." {
				return filepath.Base(path), nil
			}
			return path, nil
		}
	}
	return "", synth.ErrNoSoundFont
}
