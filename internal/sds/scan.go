package sds

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"seisvault/internal/domain"
)

// Scan walks the archive tree and reports the span of every stored
// segment, in no particular order. Files that do not follow the SDS
// naming convention are skipped; unreadable day files abort the scan.
func (a *Archive) Scan(fn func(key domain.StreamKey, span domain.TimeSpan) error) error {
	return filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		key, ok := parseDayFileName(d.Name())
		if !ok {
			return nil
		}

		segments, err := readDayFile(path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}

		for _, seg := range segments {
			span := seg.Span()
			if !span.Valid() {
				continue
			}
			if err := fn(key, span); err != nil {
				return err
			}
		}
		return nil
	})
}

// parseDayFileName extracts the stream key from an SDS day file name of
// the form NET.STA.LOC.CHA.D.YEAR.DOY. The location part may be empty.
func parseDayFileName(name string) (domain.StreamKey, bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 7 || parts[4] != "D" {
		return domain.StreamKey{}, false
	}

	key := domain.StreamKey{
		Network:  parts[0],
		Station:  parts[1],
		Location: parts[2],
		Channel:  parts[3],
	}
	if key.Validate() != nil {
		return domain.StreamKey{}, false
	}
	return key, true
}
