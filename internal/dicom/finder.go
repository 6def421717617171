package dicom

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IndexFileName is the DICOM directory index file. It is never a data
// record and is excluded from traversal regardless of content.
const IndexFileName = "DICOMDIR"

// FindFiles recursively collects every regular file under dir, excluding
// the DICOMDIR index (matched case-insensitively) and hidden directories.
// The returned paths are sorted. Whether a candidate actually is a DICOM
// record is decided when it is read.
func FindFiles(dir string) ([]string, error) {
	var files []string

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return err // unreadable root is fatal
			}
			return nil // unreadable entries below it are skipped
		}
		if info.IsDir() {
			if name := info.Name(); strings.HasPrefix(name, ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(info.Name(), IndexFileName) {
			return nil
		}
		files = append(files, path)
		return nil
	}

	if err := filepath.Walk(dir, walkFn); err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// LooksLikeDicom reports whether the file carries the "DICM" magic bytes
// at offset 128. A cheap pre-check before handing the file to the codec.
func LooksLikeDicom(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, 132)
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}
	return string(header[128:132]) == "DICM"
}
