package record

import (
	"os"
	"path/filepath"
	"sort"
)

// RecordingFile describes one completed or in-progress recording on disk,
// the supplemental listing surface for browsing past
// captures (not present in the distilled spec, which only covers the
// write path).
type RecordingFile struct {
	Name      string
	Path      string
	SizeBytes int64
	ModTime   int64
}

// ListRecordings returns every .mp4 file directly under dir, newest first.
func ListRecordings(dir string) ([]RecordingFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []RecordingFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".mp4" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, RecordingFile{
			Name:      e.Name(),
			Path:      filepath.Join(dir, e.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime().Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime > out[j].ModTime })
	return out, nil
}
