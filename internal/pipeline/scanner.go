package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnyUserName/imgpress/internal/manifest"
)

// SidecarExt is appended to an image path to name its metadata override
// file ("photo.jpg.json").
const SidecarExt = ".json"

// Source is one image file found on disk.
type Source struct {
	AbsPath string
	// RelPath is slash-separated and relative to the scanned root. It keys
	// the asset in the manifest.
	RelPath string
	// Format is guessed from the extension; the header decides later.
	Format      string
	Size        int64
	SidecarPath string
}

func (s Source) info() manifest.SourceInfo {
	return manifest.SourceInfo{Path: s.RelPath, Format: s.Format, Size: s.Size}
}

// formatByExt maps recognized extensions to decoder format names.
var formatByExt = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".webp": "webp",
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
}

// ScanImages returns the images under root in lexical order. Hidden files
// and directories are skipped, which keeps a watcher's .done and .failed
// out of a batch.
func ScanImages(root string) ([]Source, error) {
	var out []Source
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := path != root && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || !IsImage(path) {
			return nil
		}
		src, err := SourceFor(root, path)
		if err != nil {
			return err
		}
		out = append(out, src)
		return nil
	})
	return out, err
}

// IsImage reports whether path has a recognized image extension.
func IsImage(path string) bool {
	_, ok := formatByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SourceFor describes the file at path relative to root, picking up its
// sidecar when present.
func SourceFor(root, path string) (Source, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Source{}, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	src := Source{
		AbsPath: path,
		RelPath: filepath.ToSlash(rel),
		Format:  formatByExt[strings.ToLower(filepath.Ext(path))],
		Size:    st.Size(),
	}
	if sc, err := os.Stat(path + SidecarExt); err == nil && sc.Mode().IsRegular() {
		src.SidecarPath = path + SidecarExt
	}
	return src, nil
}
