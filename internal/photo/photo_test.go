package photo

import (
	"testing"
	"time"
)

func TestParseExifTime(t *testing.T) {
	ts, err := parseExifTime("2024:06:01 07:15:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 6, 1, 7, 15, 30, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected %v, got %v", want, ts)
	}

	if _, err := parseExifTime("2024-06-01T07:15:30Z"); err == nil {
		t.Error("expected error for non-EXIF layout")
	}
	if _, err := parseExifTime(""); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestIsPhoto(t *testing.T) {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".heic"} {
		if !IsPhoto(ext) {
			t.Errorf("expected %s to be a photo extension", ext)
		}
	}
	for _, ext := range []string{".gpx", ".txt", ".mov", ""} {
		if IsPhoto(ext) {
			t.Errorf("expected %s not to be a photo extension", ext)
		}
	}
}
