package storage

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

// imageTypes lists the raster formats a stored file may be named after.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
	"image/webp": ".webp",
}

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

type Storage interface {
	SaveFile(r io.Reader, info FileInfo) (string, error)
	OpenFile(name string) (io.ReadSeekCloser, error)
	DeleteFile(name string) error
}

// ExtensionFor maps a declared image content type to the extension used for
// stored files. Anything unknown is stored as JPEG.
func ExtensionFor(contentType string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	if ext, ok := imageTypes[strings.TrimSpace(mediaType)]; ok {
		return ext
	}
	return defaultExt
}

// ContentTypeFor reports the image content type of a stored file name.
func ContentTypeFor(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for contentType, e := range imageTypes {
		if e == ext {
			return contentType, true
		}
	}
	return "", false
}
