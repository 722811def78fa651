package junksite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/junksite/archive"
	"github.com/eringen/junksite/notify"
)

func toArchive(p Post) archive.Post {
	rec := archive.Post{
		Title:    p.Title,
		Excerpt:  p.Excerpt,
		Content:  p.Content,
		Category: p.Category,
		Tags:     p.Tags,
		Date:     p.Date,
	}
	if p.Image != nil {
		rec.Image = &archive.Image{Data: p.Image.Data, ContentType: p.Image.ContentType}
	}
	return rec
}

func fromArchive(rec archive.Post) Post {
	p := Post{
		Title:    rec.Title,
		Excerpt:  rec.Excerpt,
		Content:  rec.Content,
		Category: rec.Category,
		Tags:     rec.Tags,
	}
	if rec.Image != nil {
		p.Image = &PostImage{Data: rec.Image.Data, ContentType: rec.Image.ContentType}
	}
	return p
}

// ExportPost writes the archive of post id to w. ErrNotFound is returned
// before anything is written.
func ExportPost(ctx context.Context, s *Store, id int64, w io.Writer) error {
	p, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	return archive.Encode(w, toArchive(p))
}

// ImportPost decodes the archive read from r and stores it as a new post
// dated now. The scratch space used for decoding is gone by the time the
// store is touched.
func ImportPost(ctx context.Context, s *Store, dec *archive.Decoder, r io.Reader) (Post, error) {
	rec, err := dec.Decode(ctx, r)
	if err != nil {
		return Post{}, err
	}
	return s.CreatePost(ctx, fromArchive(rec))
}

func (a *App) handleExport(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		a.Metrics.IncExport(resultRejected)
		return err
	}
	post, err := a.Store.GetPost(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.Metrics.IncExport(resultRejected)
		} else {
			a.Metrics.IncExport(resultFailed)
		}
		return storeError(err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="post-%d.zip"`, id))
	if err := archive.Encode(res, toArchive(post)); err != nil {
		a.Metrics.IncExport(resultFailed)
		if !res.Committed {
			res.Header().Del(echo.HeaderContentDisposition)
			return fmt.Errorf("export post %d: %w", id, err)
		}
		a.Logger.Error("export stream failed", "id", id, "error", err)
		return nil
	}
	a.Metrics.IncExport(resultOK)
	a.Logger.Info("post exported", "id", id)
	return nil
}

func (a *App) handleImport(c echo.Context) error {
	if err := parseMultipart(c, a.Config.MaxImportSize); err != nil {
		a.Metrics.IncImport(resultRejected)
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		a.Metrics.IncImport(resultRejected)
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	if file.Size > a.Config.MaxImportSize {
		a.Metrics.IncImport(resultRejected)
		return tooLarge(a.Config.MaxImportSize)
	}
	src, err := file.Open()
	if err != nil {
		a.Metrics.IncImport(resultFailed)
		return err
	}
	defer src.Close()

	ctx := c.Request().Context()
	post, err := ImportPost(ctx, a.Store, a.decoder, src)
	if err != nil {
		var ve *ValidationError
		if archive.IsBadRequest(err) || errors.As(err, &ve) {
			a.Metrics.IncImport(resultRejected)
			a.Logger.Info("import rejected", "file", file.Filename, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		a.Metrics.IncImport(resultFailed)
		return fmt.Errorf("import %s: %w", file.Filename, err)
	}

	a.Cache.Invalidate()
	a.Metrics.IncImport(resultOK)
	a.Logger.Info("post imported", "id", post.ID, "title", post.Title, "file", file.Filename)
	a.publish(ctx, notify.Event{
		Kind:       notify.PostImported,
		ID:         post.ID,
		Attributes: map[string]string{"title": post.Title},
		OccurredAt: post.Date,
	})
	return c.JSON(http.StatusCreated, a.toResponse(post))
}
