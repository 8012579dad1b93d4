// Package photo extracts capture timestamps from photos and writes GPS tags
// back, via an exiftool subprocess.
package photo

import (
	"fmt"
	"os"
	"time"

	"github.com/barasher/go-exiftool"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// Tagger reads and writes photo metadata. Close it when done; it holds a
// long-lived exiftool process.
type Tagger struct {
	et *exiftool.Exiftool
}

// NewTagger starts an exiftool session.
func NewTagger() (*Tagger, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &Tagger{et: et}, nil
}

// Close terminates the exiftool session.
func (t *Tagger) Close() error {
	return t.et.Close()
}

// CaptureTime returns the photo's capture timestamp from EXIF, preferring
// DateTimeOriginal, falling back to the file's modification time when the
// EXIF fields are absent or unreadable. EXIF times are local wall-clock with
// no zone information.
func (t *Tagger) CaptureTime(path string) (time.Time, error) {
	fms := t.et.ExtractMetadata(path)
	if len(fms) == 1 && fms[0].Err == nil {
		for _, key := range []string{"DateTimeOriginal", "CreateDate", "ModifyDate"} {
			raw, err := fms[0].GetString(key)
			if err != nil {
				continue
			}
			if ts, err := parseExifTime(raw); err == nil {
				return ts, nil
			}
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("capture time for %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// Geotag writes GPS coordinates into the photo's EXIF tags.
func (t *Tagger) Geotag(path string, lat, lon float64, elevation *float64) error {
	fms := t.et.ExtractMetadata(path)
	if len(fms) != 1 {
		return fmt.Errorf("geotag %s: unexpected exiftool output", path)
	}
	if fms[0].Err != nil {
		return fmt.Errorf("geotag %s: %w", path, fms[0].Err)
	}

	fms[0].SetFloat("GPSLatitude", lat)
	fms[0].SetFloat("GPSLongitude", lon)
	if elevation != nil {
		fms[0].SetFloat("GPSAltitude", *elevation)
	}

	t.et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return fmt.Errorf("geotag %s: %w", path, fms[0].Err)
	}
	return nil
}

func parseExifTime(raw string) (time.Time, error) {
	ts, err := time.Parse(exifTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse exif time %q: %w", raw, err)
	}
	return ts, nil
}

// IsPhoto reports whether ext (lowercase, with dot) is a supported photo
// extension.
func IsPhoto(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".heic":
		return true
	}
	return false
}
