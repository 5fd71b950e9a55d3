package jobs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gwlsn/transcast/internal/config"
)

// MappingFor returns the root mapping whose input root contains path, plus
// the path's relative location under it. Output and error paths are
// deterministic from these two values.
func MappingFor(roots []config.RootMapping, path string) (config.RootMapping, string, error) {
	clean := filepath.Clean(path)
	for _, m := range roots {
		root := filepath.Clean(m.Input)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			rel, err := filepath.Rel(root, clean)
			if err != nil {
				return config.RootMapping{}, "", err
			}
			return m, rel, nil
		}
	}
	return config.RootMapping{}, "", fmt.Errorf("%s is not under any configured input root", path)
}

// OutputPath is Out/rel with the source extension replaced by ext
// (".mp4"/".mkv"/".mov" from the resolved container). Pass the source's
// own extension to derive the kept-original / relocated-source
// destination instead.
func OutputPath(m config.RootMapping, rel, ext string) string {
	return filepath.Join(m.Output, replaceExt(rel, ext))
}

// MarkerPath is the error marker Out/rel/name.err adjacent to the
// intended output.
func MarkerPath(m config.RootMapping, rel string) string {
	return filepath.Join(m.Output, replaceExt(rel, ".err"))
}

// ErrorDest returns where housekeeping relocates a failed source and its
// marker: Err/rel preserving the relative structure.
func ErrorDest(m config.RootMapping, rel string) (sourceDest, markerDest string) {
	return filepath.Join(m.Error, rel), filepath.Join(m.Error, replaceExt(rel, ".err"))
}

func replaceExt(rel, ext string) string {
	old := filepath.Ext(rel)
	return strings.TrimSuffix(rel, old) + ext
}
