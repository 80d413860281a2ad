package logwatch

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoLogFile means no VRChat output log could be located.
var ErrNoLogFile = errors.New("no VRChat log file found")

// StaleAfter is how old the newest log may be before FindLatestLog flags it:
// an older file usually means VRChat is not running.
const StaleAfter = time.Hour

// logDirs returns the OS-conventional VRChat log directories, most likely
// first. Directories that do not exist are skipped by the caller.
func logDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "AppData", "LocalLow", "VRChat", "VRChat"), // Windows
		filepath.Join(home, "Library", "Logs", "VRChat", "VRChat"),     // macOS
		filepath.Join(home, ".config", "unity3d", "VRChat", "VRChat"),  // Linux
	}
}

// FindLatestLog locates the newest output_log_*.txt across the conventional
// VRChat log directories. The returned modification time lets the caller
// decide whether the log is stale (see StaleAfter).
func FindLatestLog() (path string, modTime time.Time, err error) {
	type candidate struct {
		path string
		mod  time.Time
	}
	var cands []candidate

	for _, dir := range logDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, "output_log_") || !strings.HasSuffix(name, ".txt") {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			cands = append(cands, candidate{path: filepath.Join(dir, name), mod: fi.ModTime()})
		}
	}

	if len(cands) == 0 {
		return "", time.Time{}, ErrNoLogFile
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod.After(cands[j].mod) })
	return cands[0].path, cands[0].mod, nil
}
