package service

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// dataFormats maps file extensions to the source format identifiers the
// pipeline dispatches on.
var dataFormats = map[string]string{
	".fgb":     "FlatGeoBuf",
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
	".tif":     "GeoTIFF",
	".tiff":    "GeoTIFF",
	".pmtiles": "PMTiles",
}

// DataService lists the data files served under the data URL prefix.
type DataService struct {
	dir    string
	prefix string
}

// NewDataService serves files from dir; urlPrefix is prepended to file
// names to form their URLs.
func NewDataService(dir, urlPrefix string) *DataService {
	return &DataService{dir: dir, prefix: urlPrefix}
}

// List returns the supported files in the data directory, sorted by name.
// A missing directory is an empty list.
func (s *DataService) List() ([]DataFile, error) {
	if s.dir == "" {
		return []DataFile{}, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DataFile{}, nil
		}
		return nil, err
	}

	files := []DataFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, ok := dataFormats[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, DataFile{
			Name:   entry.Name(),
			URL:    path.Join("/", s.prefix, entry.Name()),
			Size:   formatSize(info.Size()),
			Format: f,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *DataService) Dir() string { return s.dir }

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
