package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	uploadName  = "upload.zip"
	contentsDir = "contents"

	// DefaultMaxExtractedSize bounds the total bytes a single archive may
	// expand to on disk.
	DefaultMaxExtractedSize = 64 << 20
)

// Decoder restores posts from uploaded archives. Every call works in its own
// scratch directory, which is removed before Decode returns.
type Decoder struct {
	Scratch          *Scratch
	MaxExtractedSize int64
	Logger           *slog.Logger

	readFile func(name string) ([]byte, error)
}

// NewDecoder returns a Decoder whose scratch directories live under base.
func NewDecoder(base string, logger *slog.Logger) *Decoder {
	return &Decoder{
		Scratch: &Scratch{Base: base, Logger: logger},
		Logger:  logger,
	}
}

// Decode reads an archive from r and returns the post it describes. The
// returned post has no date; callers stamp one on insert. A missing or
// unreadable image member degrades to a post without an image.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (Post, error) {
	if r == nil {
		return Post{}, ErrNoUpload
	}
	dir, err := d.Scratch.Acquire()
	if err != nil {
		return Post{}, err
	}
	defer dir.Release()

	upload := dir.Join(uploadName)
	if err := writeUpload(upload, r); err != nil {
		return Post{}, err
	}
	if err := ctx.Err(); err != nil {
		return Post{}, err
	}

	contents := dir.Join(contentsDir)
	if err := d.extract(ctx, upload, contents); err != nil {
		return Post{}, err
	}

	data, err := readMetadata(filepath.Join(contents, MetadataName))
	if err != nil {
		return Post{}, err
	}
	meta, err := parseMetadata(data)
	if err != nil {
		return Post{}, err
	}

	return Post{
		Title:    meta.Title,
		Excerpt:  meta.Excerpt,
		Content:  meta.Content,
		Category: meta.Category,
		Tags:     meta.Tags,
		Image:    d.findImage(contents),
	}, nil
}

// readMetadata reads the extracted metadata member. Anything other than a
// regular file counts as missing.
func readMetadata(path string) ([]byte, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return nil, ErrMissingMetadata
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", MetadataName, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MetadataName, err)
	}
	return data, nil
}

func writeUpload(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close upload file: %w", err)
	}
	return nil
}

func (d *Decoder) extract(ctx context.Context, src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	defer zr.Close()

	if err := os.Mkdir(dest, 0o700); err != nil {
		return fmt.Errorf("create extraction dir: %w", err)
	}

	budget := d.MaxExtractedSize
	if budget <= 0 {
		budget = DefaultMaxExtractedSize
	}
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := memberPath(dest, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		if mode.IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return fmt.Errorf("%w: create %s: %v", ErrMalformedArchive, f.Name, err)
			}
			continue
		}
		if !mode.IsRegular() {
			continue
		}
		n, err := extractMember(f, target, budget)
		if err != nil {
			return err
		}
		budget -= n
	}
	return nil
}

// memberPath resolves an archive member name inside dest, rejecting names
// that would land outside it.
func memberPath(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: illegal member path %q", ErrMalformedArchive, name)
	}
	return filepath.Join(dest, clean), nil
}

func extractMember(f *zip.File, target string, budget int64) (int64, error) {
	// a parent that already exists as a file means two members collide
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return 0, fmt.Errorf("%w: create parent of %s: %v", ErrMalformedArchive, f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrMalformedArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrMalformedArchive, f.Name, err)
	}
	n, copyErr := io.Copy(out, io.LimitReader(rc, budget+1))
	closeErr := out.Close()
	if copyErr != nil {
		return n, fmt.Errorf("%w: read %s: %v", ErrMalformedArchive, f.Name, copyErr)
	}
	if n > budget {
		return n, fmt.Errorf("%w: contents exceed %d bytes", ErrTooLarge, budget)
	}
	if closeErr != nil {
		return n, fmt.Errorf("write %s: %w", f.Name, closeErr)
	}
	return n, nil
}

// findImage returns the first regular image.* member in directory order.
func (d *Decoder) findImage(dir string) *Image {
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger().Warn("list extracted archive", "dir", dir, "error", err)
		return nil
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), ImagePrefix) {
			continue
		}
		data, err := d.read(filepath.Join(dir, e.Name()))
		if err != nil {
			d.logger().Warn("image in archive unreadable, importing without it", "name", e.Name(), "error", err)
			return nil
		}
		if len(data) == 0 {
			d.logger().Warn("image in archive is empty, importing without it", "name", e.Name())
			return nil
		}
		return &Image{Data: data, ContentType: ContentTypeFor(e.Name())}
	}
	return nil
}

func (d *Decoder) read(name string) ([]byte, error) {
	if d.readFile != nil {
		return d.readFile(name)
	}
	return os.ReadFile(name)
}

func (d *Decoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
