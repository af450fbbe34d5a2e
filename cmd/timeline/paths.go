package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var recordingExts = map[string]bool{".mkv": true, ".webm": true}

// expandInputs turns the command line arguments into the reference recording
// and the ordered list of segment paths. Directories contribute their
// recordings in lexical order; a leading directory also names the reference,
// its lexically last recording. Paths that cannot be stat'ed are kept so the
// build reports them.
func expandInputs(args []string) (reference string, paths []string, err error) {
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for i, arg := range args {
		fi, statErr := os.Stat(arg)
		if statErr != nil || !fi.IsDir() {
			if i == 0 {
				reference = arg
			}
			add(arg)
			continue
		}

		recs, err := listRecordings(arg)
		if err != nil {
			return "", nil, err
		}
		if len(recs) == 0 {
			return "", nil, fmt.Errorf("no recordings in %s", arg)
		}
		if i == 0 {
			reference = recs[len(recs)-1]
		}
		for _, r := range recs {
			add(r)
		}
	}
	return reference, paths, nil
}

func listRecordings(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	var recs []string
	for _, e := range entries {
		if e.IsDir() || !recordingExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		recs = append(recs, filepath.Join(dir, e.Name()))
	}
	return recs, nil
}
