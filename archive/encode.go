package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Encode writes p to w as a zip archive compressed at the highest deflate
// level. Members are streamed as they are added; nothing touches disk. When
// Encode fails after the first write, whatever already reached w stays there.
func Encode(w io.Writer, p Post) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	modified := p.Date
	if modified.IsZero() {
		modified = time.Now()
	}

	meta := metadata{
		Title:    p.Title,
		Excerpt:  p.Excerpt,
		Content:  p.Content,
		Category: p.Category,
		Tags:     p.Tags,
		Date:     p.Date,
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeMember(zw, MetadataName, data, modified); err != nil {
		return err
	}

	if p.Image != nil && len(p.Image.Data) > 0 {
		if err := writeMember(zw, imageName(p.Image.ContentType), p.Image.Data, modified); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func writeMember(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
