package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the local index, keyed by component name.
type Usage struct {
	Components map[string]int64 `json:"components"`
	Total      int64            `json:"total"`
}

// MeasureUsage sums the size of each named path. A path may be a file (the SQLite
// database, with its WAL siblings) or a directory (the Bleve index). Missing paths
// count as zero.
func MeasureUsage(paths map[string]string) (*Usage, error) {
	u := &Usage{Components: make(map[string]int64, len(paths))}
	for name, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, err
		}
		// SQLite in WAL mode keeps -wal and -shm files next to the database.
		for _, suffix := range []string{"-wal", "-shm"} {
			extra, err := pathSize(p + suffix)
			if err != nil {
				return nil, err
			}
			n += extra
		}
		u.Components[name] = n
		u.Total += n
	}
	return u, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
