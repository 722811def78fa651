// Package archive packages a single blog post and its optional image into a
// zip container, and restores a post from such a container.
//
// An archive holds exactly one post.json member with the post metadata and at
// most one image.<ext> member with the raw image bytes.
package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MetadataName is the archive member holding the post metadata.
	MetadataName = "post.json"
	// ImagePrefix prefixes the optional image member, e.g. image.png.
	ImagePrefix = "image."

	defaultExtension = "jpg"
)

var (
	ErrNoUpload         = errors.New("no file uploaded")
	ErrTooLarge         = errors.New("archive too large")
	ErrMalformedArchive = errors.New("malformed archive")
	ErrMissingMetadata  = errors.New("post.json not found in archive")
	ErrInvalidMetadata  = errors.New("invalid post.json")
)

// IsBadRequest reports whether err was caused by the uploaded input rather
// than by the server.
func IsBadRequest(err error) bool {
	for _, target := range []error{ErrNoUpload, ErrTooLarge, ErrMalformedArchive, ErrMissingMetadata, ErrInvalidMetadata} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Image is the binary image attached to a post.
type Image struct {
	Data        []byte
	ContentType string
}

// Post is the record carried by an archive.
type Post struct {
	Title    string
	Excerpt  string
	Content  string
	Category string
	Tags     []string
	Image    *Image
	Date     time.Time
}

// metadata is the JSON shape of post.json. Image bytes never appear here.
type metadata struct {
	Title    string    `json:"title"`
	Excerpt  string    `json:"excerpt"`
	Content  string    `json:"content"`
	Category string    `json:"category"`
	Tags     []string  `json:"tags"`
	Date     time.Time `json:"date"`
}

// ImageExtension derives the image member extension from a content type:
// the lowercased subtype after "/", or "jpg" when there is none.
func ImageExtension(contentType string) string {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	_, sub, ok := strings.Cut(strings.TrimSpace(ct), "/")
	sub = strings.ToLower(strings.TrimSpace(sub))
	if !ok || sub == "" {
		return defaultExtension
	}
	return sub
}

// ContentTypeFor maps an image member name such as image.png to its content
// type. jpg and an empty extension both map to image/jpeg.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(name, ImagePrefix))
	if ext == "" || ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}

func imageName(contentType string) string {
	return fmt.Sprintf("%s%s", ImagePrefix, ImageExtension(contentType))
}
