package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name string
	data []byte
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write(m.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = b
	}
	return out
}

var validMeta = []byte(`{"title":"a","excerpt":"b","content":"c"}`)

func newTestDecoder(t *testing.T) (*Decoder, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "scratch")
	return NewDecoder(base, nil), base
}

func assertNoScratchLeft(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directories left behind")
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/png", "png"},
		{"image/jpeg", "jpeg"},
		{"image/WEBP", "webp"},
		{"image/svg+xml", "svg+xml"},
		{"image/gif; charset=binary", "gif"},
		{"image/", "jpg"},
		{"image", "jpg"},
		{"", "jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageExtension(tt.contentType), "content type %q", tt.contentType)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor("image.png"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("image.jpeg"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("image.jpg"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("image."))
}

func TestEncodeWritesMetadataAndImage(t *testing.T) {
	date := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	p := Post{
		Title:    "Spring Cleanup",
		Excerpt:  "Clearing out the shed",
		Content:  "We hauled **everything**.",
		Category: "Residential",
		Tags:     []string{"shed", "spring"},
		Image:    &Image{Data: []byte("\x89PNG fake"), ContentType: "image/png"},
		Date:     date,
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	members := readZip(t, buf.Bytes())
	require.Len(t, members, 2)
	assert.Equal(t, []byte("\x89PNG fake"), members["image.png"])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(members[MetadataName], &meta))
	assert.Equal(t, "Spring Cleanup", meta["title"])
	assert.Equal(t, "Clearing out the shed", meta["excerpt"])
	assert.Equal(t, "We hauled **everything**.", meta["content"])
	assert.Equal(t, "Residential", meta["category"])
	assert.Equal(t, []any{"shed", "spring"}, meta["tags"])
	assert.Equal(t, "2024-03-09T10:00:00Z", meta["date"])
	assert.True(t, strings.HasPrefix(string(members[MetadataName]), "{\n  \""), "post.json should be indented")
}

func TestEncodeUsesDeflate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Post{Title: "t", Excerpt: "e", Content: strings.Repeat("haul ", 500)}))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method, f.Name)
	}
	assert.Less(t, zr.File[0].CompressedSize64, zr.File[0].UncompressedSize64)
}

func TestEncodeWithoutImageHasSingleMember(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Post{Title: "t", Excerpt: "e", Content: "c"}))
	members := readZip(t, buf.Bytes())
	require.Len(t, members, 1)
	require.Contains(t, members, MetadataName)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(members[MetadataName], &meta))
	assert.Equal(t, []any{}, meta["tags"])

	dec, base := newTestDecoder(t)
	got, err := dec.Decode(context.Background(), &buf)
	require.NoError(t, err)
	assert.Nil(t, got.Image)
	assertNoScratchLeft(t, base)
}

func TestEncodeMalformedContentTypeDefaultsToJpg(t *testing.T) {
	var buf bytes.Buffer
	p := Post{Title: "t", Excerpt: "e", Content: "c", Image: &Image{Data: []byte{1, 2, 3}, ContentType: "image/"}}
	require.NoError(t, Encode(&buf, p))
	members := readZip(t, buf.Bytes())
	assert.Contains(t, members, "image.jpg")
}

func TestEncodePropagatesWriteErrors(t *testing.T) {
	err := Encode(failingWriter{}, Post{Title: "t", Excerpt: "e", Content: "c"})
	require.Error(t, err)
	assert.False(t, IsBadRequest(err))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		image    *Image
		wantType string
	}{
		{"no image", nil, ""},
		{"png", &Image{Data: []byte("png-bytes"), ContentType: "image/png"}, "image/png"},
		{"jpeg", &Image{Data: []byte("jpeg-bytes"), ContentType: "image/jpeg"}, "image/jpeg"},
		{"jpg normalized", &Image{Data: []byte("jpg-bytes"), ContentType: "image/jpg"}, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Post{
				Title:    "Estate Cleanout",
				Excerpt:  "Three rooms in a day",
				Content:  "Long form text\nwith lines.",
				Category: "Estate",
				Tags:     []string{"estate", "furniture", "donation"},
				Image:    tt.image,
				Date:     time.Now().UTC(),
			}
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, in))

			dec, base := newTestDecoder(t)
			out, err := dec.Decode(context.Background(), &buf)
			require.NoError(t, err)

			assert.Equal(t, in.Title, out.Title)
			assert.Equal(t, in.Excerpt, out.Excerpt)
			assert.Equal(t, in.Content, out.Content)
			assert.Equal(t, in.Category, out.Category)
			assert.Equal(t, in.Tags, out.Tags)
			if tt.image == nil {
				assert.Nil(t, out.Image)
			} else {
				require.NotNil(t, out.Image)
				assert.Equal(t, tt.image.Data, out.Image.Data)
				assert.Equal(t, tt.wantType, out.Image.ContentType)
			}
			assertNoScratchLeft(t, base)
		})
	}
}

func TestGarageCleanoutScenario(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0xFF, 0xD9}
	in := Post{
		Title:    "Garage Cleanout",
		Excerpt:  "...",
		Content:  "...",
		Category: "Residential",
		Tags:     []string{"garage", "cleanout"},
		Image:    &Image{Data: jpeg, ContentType: "image/jpeg"},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	members := readZip(t, buf.Bytes())
	require.Len(t, members, 2)
	assert.Equal(t, jpeg, members["image.jpeg"])

	dec, base := newTestDecoder(t)
	out, err := dec.Decode(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "Garage Cleanout", out.Title)
	assert.Equal(t, []string{"garage", "cleanout"}, out.Tags)
	require.NotNil(t, out.Image)
	assert.Equal(t, jpeg, out.Image.Data)
	assertNoScratchLeft(t, base)
}

func TestDecodeDefaultsMissingTags(t *testing.T) {
	data := buildZip(t, member{MetadataName, []byte(`{"title":"a","excerpt":"b","content":"c"}`)})
	dec, base := newTestDecoder(t)
	out, err := dec.Decode(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.NotNil(t, out.Tags)
	assert.Empty(t, out.Tags)
	assert.Empty(t, out.Category)
	assertNoScratchLeft(t, base)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not a zip", []byte("this is not an archive"), ErrMalformedArchive},
		{"empty upload", nil, ErrMalformedArchive},
		{"no metadata", buildZip(t, member{"image.png", []byte("x")}), ErrMissingMetadata},
		{"metadata not json", buildZip(t, member{MetadataName, []byte("{nope")}), ErrInvalidMetadata},
		{"tags not a list", buildZip(t, member{MetadataName, []byte(`{"title":"a","excerpt":"b","content":"c","tags":"x,y"}`)}), ErrInvalidMetadata},
		{"missing title", buildZip(t, member{MetadataName, []byte(`{"excerpt":"b","content":"c"}`)}), ErrInvalidMetadata},
		{"zip slip", buildZip(t, member{"../evil.txt", []byte("x")}, member{MetadataName, []byte(`{}`)}), ErrMalformedArchive},
		{"metadata is a directory", buildZip(t, member{MetadataName + "/", nil}), ErrMissingMetadata},
		{"file then nested member", buildZip(t, member{MetadataName, validMeta}, member{"a", []byte("x")}, member{"a/b", []byte("y")}), ErrMalformedArchive},
		{"directory then same-name file", buildZip(t, member{MetadataName, validMeta}, member{"x/", nil}, member{"x", []byte("y")}), ErrMalformedArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, base := newTestDecoder(t)
			_, err := dec.Decode(context.Background(), bytes.NewReader(tt.data))
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsBadRequest(err))
			assertNoScratchLeft(t, base)
		})
	}
}

func TestDecodeRejectsOversizedContents(t *testing.T) {
	data := buildZip(t,
		member{MetadataName, []byte(`{"title":"a","excerpt":"b","content":"c"}`)},
		member{"image.png", bytes.Repeat([]byte{0}, 4096)},
	)
	dec, base := newTestDecoder(t)
	dec.MaxExtractedSize = 1024
	_, err := dec.Decode(context.Background(), bytes.NewReader(data))
	require.ErrorIs(t, err, ErrTooLarge)
	assertNoScratchLeft(t, base)
}

func TestDecodeNilReader(t *testing.T) {
	dec, base := newTestDecoder(t)
	_, err := dec.Decode(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoUpload)
	_, statErr := os.Stat(base)
	assert.True(t, os.IsNotExist(statErr), "no scratch dir should be created without an upload")
}

func TestDecodeCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Post{Title: "t", Excerpt: "e", Content: "c"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dec, base := newTestDecoder(t)
	_, err := dec.Decode(ctx, &buf)
	require.ErrorIs(t, err, context.Canceled)
	assertNoScratchLeft(t, base)
}

func TestDecodeIgnoresNonImageMembers(t *testing.T) {
	data := buildZip(t,
		member{MetadataName, []byte(`{"title":"a","excerpt":"b","content":"c"}`)},
		member{"photo.png", []byte("not picked")},
		member{"notes/image.png", []byte("nested, not picked")},
	)
	dec, _ := newTestDecoder(t)
	out, err := dec.Decode(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Nil(t, out.Image)
}

func TestDecodePicksFirstImageInDirectoryOrder(t *testing.T) {
	data := buildZip(t,
		member{"image.png", []byte("png")},
		member{MetadataName, []byte(`{"title":"a","excerpt":"b","content":"c"}`)},
		member{"image.gif", []byte("gif")},
	)
	dec, _ := newTestDecoder(t)
	out, err := dec.Decode(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, out.Image)
	assert.Equal(t, "image/gif", out.Image.ContentType)
	assert.Equal(t, []byte("gif"), out.Image.Data)
}

func TestDecodeEmptyImageDegradesToNoImage(t *testing.T) {
	data := buildZip(t,
		member{MetadataName, []byte(`{"title":"a","excerpt":"b","content":"c"}`)},
		member{"image.png", nil},
	)
	dec, _ := newTestDecoder(t)
	out, err := dec.Decode(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Nil(t, out.Image)
}

func TestDecodeUnreadableImageDegradesToNoImage(t *testing.T) {
	data := buildZip(t,
		member{MetadataName, validMeta},
		member{"image.png", []byte("png")},
	)
	var logs bytes.Buffer
	dec, base := newTestDecoder(t)
	dec.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	dec.readFile = func(name string) ([]byte, error) {
		if strings.HasPrefix(filepath.Base(name), ImagePrefix) {
			return nil, fs.ErrPermission
		}
		return os.ReadFile(name)
	}

	out, err := dec.Decode(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "a", out.Title)
	assert.Nil(t, out.Image)
	assert.Contains(t, logs.String(), "unreadable")
	assertNoScratchLeft(t, base)
}

func TestFindImageSkipsPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	require.NoError(t, os.Chmod(path, 0))
	t.Cleanup(func() { os.Chmod(path, 0o600) })

	dec, _ := newTestDecoder(t)
	assert.Nil(t, dec.findImage(dir))
}
