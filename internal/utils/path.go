package utils

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// DataFileCandidates lists where a dataset named by path may live, in the
// order they are tried:
//  1. path itself when absolute
//  2. relative to the working directory
//  3. relative to the executable directory and its parent
//  4. the data/ folder under configDir
func DataFileCandidates(path, configDir string) []string {
	if filepath.IsAbs(path) {
		return []string{path}
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, path))
	}
	if execDir, err := GetExecutableDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(execDir, path),
			filepath.Join(filepath.Dir(execDir), path),
		)
	}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, "data", filepath.Base(path)))
	}
	return candidates
}

// ResolveDataFile returns the first candidate from DataFileCandidates that
// exists. When none does it returns path unchanged and os.ErrNotExist.
func ResolveDataFile(path, configDir string) (string, error) {
	for _, candidate := range DataFileCandidates(path, configDir) {
		if FileExists(candidate) {
			log.Debugf("Found dataset: %s", candidate)
			return candidate, nil
		}
		log.Debugf("Dataset candidate not found: %s", candidate)
	}
	return path, os.ErrNotExist
}
