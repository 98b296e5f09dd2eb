// Package fileutil locates songs and support files on disk.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("file not found")

// songExtensions are the Standard MIDI File suffixes recognised in song
// directories.
var songExtensions = map[string]bool{
	".mid":  true,
	".midi": true,
	".smf":  true,
	".kar":  true,
}

// FindFileCaseInsensitive searches dir for filename ignoring case and returns
// the real path.
//
// Example:
//
//	path, err := FindFileCaseInsensitive("/path/to/dir", "GeneralUser-GS.SF2")
//	// Will find "generaluser-gs.sf2", "GENERALUSER-GS.SF2", etc.
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	name, err := FindFileCaseInsensitiveFS(os.DirFS(dir), ".", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
	}
	return filepath.Join(dir, filepath.FromSlash(name)), nil
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive over an fs.FS. The
// returned name uses forward slashes and is relative to the FS root.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return path.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// IsSongFile reports whether name has a MIDI file extension.
func IsSongFile(name string) bool {
	return songExtensions[strings.ToLower(path.Ext(name))]
}

// FindSongs walks root and returns every song file below it in sorted order.
// Hidden directories are skipped.
func FindSongs(fsys fs.FS, root string) ([]string, error) {
	var songs []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if IsSongFile(d.Name()) {
			songs = append(songs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(songs)
	return songs, nil
}

// ExpandSongPaths turns a mix of files and directories into a list of song
// files. Files named explicitly are kept whatever their extension; directories
// contribute the songs found below them. Duplicates are dropped.
func ExpandSongPaths(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		if !info.IsDir() {
			add(filepath.Clean(p))
			continue
		}

		songs, err := FindSongs(os.DirFS(p), ".")
		if err != nil {
			return nil, err
		}
		if len(songs) == 0 {
			return nil, fmt.Errorf("%w: no MIDI files in %s", ErrNotFound, p)
		}
		for _, s := range songs {
			add(filepath.Join(p, filepath.FromSlash(s)))
		}
	}
	return out, nil
}
