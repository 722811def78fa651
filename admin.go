package junksite

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// in-memory part of a parsed multipart form; larger files spill to disk
const formMemory = 8 << 20

// parseMultipart parses the request form up front so that a body over the
// limitBody cap is reported instead of silently yielding empty fields.
func parseMultipart(c echo.Context, limit int64) error {
	err := c.Request().ParseMultipartForm(formMemory)
	var mbe *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, http.ErrNotMultipart):
		return nil
	case errors.As(err, &mbe):
		return tooLarge(limit)
	}
	return echo.NewHTTPError(http.StatusBadRequest, "Malformed form data")
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("File too large (max %s)", humanize.IBytes(uint64(limit))))
}

func readPostFields(c echo.Context) (Post, error) {
	tags, err := ParseTagsField(c.FormValue("tags"))
	if err != nil {
		return Post{}, err
	}
	return Post{
		Title:    strings.TrimSpace(c.FormValue("title")),
		Excerpt:  strings.TrimSpace(c.FormValue("excerpt")),
		Content:  c.FormValue("content"),
		Category: strings.TrimSpace(c.FormValue("category")),
		Tags:     tags,
	}, nil
}

// readImageField returns the processed "image" upload, or nil when the form
// carries none.
func (a *App) readImageField(c echo.Context) (*PostImage, error) {
	file, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Malformed image upload")
	}
	if file.Size > a.Config.MaxImageSize {
		return nil, tooLarge(a.Config.MaxImageSize)
	}
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := processImage(src)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid image: "+err.Error())
	}
	return img, nil
}

func (a *App) handleCreatePost(c echo.Context) error {
	if err := parseMultipart(c, a.Config.MaxImageSize); err != nil {
		return err
	}
	p, err := readPostFields(c)
	if err != nil {
		return storeError(err)
	}
	if p.Image, err = a.readImageField(c); err != nil {
		return err
	}
	post, err := a.Store.CreatePost(c.Request().Context(), p)
	if err != nil {
		return storeError(err)
	}
	a.Cache.Invalidate()
	a.Logger.Info("post created", "id", post.ID, "title", post.Title)
	return c.JSON(http.StatusCreated, a.toResponse(post))
}

func (a *App) handleUpdatePost(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	if err := parseMultipart(c, a.Config.MaxImageSize); err != nil {
		return err
	}
	p, err := readPostFields(c)
	if err != nil {
		return storeError(err)
	}
	p.ID = id
	if p.Image, err = a.readImageField(c); err != nil {
		return err
	}
	removeImage, _ := strconv.ParseBool(c.FormValue("removeImage"))
	replaceImage := p.Image != nil || removeImage

	post, err := a.Store.UpdatePost(c.Request().Context(), p, replaceImage)
	if err != nil {
		return storeError(err)
	}
	a.Cache.Invalidate()
	a.Logger.Info("post updated", "id", post.ID, "image_replaced", replaceImage)
	return c.JSON(http.StatusOK, a.toResponse(post))
}

func (a *App) handleDeletePost(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeletePost(c.Request().Context(), id); err != nil {
		return storeError(err)
	}
	a.Cache.Invalidate()
	a.Logger.Info("post deleted", "id", id)
	return c.NoContent(http.StatusNoContent)
}
