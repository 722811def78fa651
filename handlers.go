package junksite

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

// postResponse is the JSON shape of a post. Image bytes are served
// separately from ImageURL.
type postResponse struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Excerpt  string    `json:"excerpt"`
	Content  string    `json:"content"`
	Category string    `json:"category"`
	Tags     []string  `json:"tags"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Date     time.Time `json:"date"`
}

func (a *App) toResponse(p Post) postResponse {
	r := postResponse{
		ID:       p.ID,
		Title:    p.Title,
		Excerpt:  p.Excerpt,
		Content:  p.Content,
		Category: p.Category,
		Tags:     p.Tags,
		Date:     p.Date,
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if p.HasImage {
		r.ImageURL = BuildURL(a.Config.URL, "api", "posts", strconv.FormatInt(p.ID, 10), "image")
	}
	return r
}

func (a *App) toResponses(posts []Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, a.toResponse(p))
	}
	return out
}

func (a *App) handleListPosts(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), PostFilter{
		Category: c.QueryParam("category"),
		Tag:      c.QueryParam("tag"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.toResponses(posts))
}

func (a *App) handleCategories(c echo.Context) error {
	categories, err := a.Cache.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, categories)
}

func (a *App) handleGetPost(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	post, err := a.Cache.GetPost(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, a.toResponse(post))
}

func (a *App) handleRelatedPosts(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	post, err := a.Cache.GetPost(ctx, id)
	if err != nil {
		return storeError(err)
	}
	posts, err := a.Cache.ListPosts(ctx, PostFilter{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.toResponses(FilterRelatedPosts(post, posts)))
}

func (a *App) handlePostImage(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	img, err := a.Store.GetPostImage(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.Blob(http.StatusOK, img.ContentType, img.Data)
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.Store.Ping(c.Request().Context()); err != nil {
		a.Logger.Error("health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), PostFilter{})
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func postID(c echo.Context) (int64, error) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid id")
	}
	return id, nil
}

// storeError maps store errors onto HTTP errors. Unknown errors pass through
// and end up as 500.
func storeError(err error) error {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	return err
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		a.Logger.Warn("error after response was sent", "uri", c.Request().RequestURI, "error", err)
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= 500 {
		a.Logger.Error("server error", "method", c.Request().Method, "uri", c.Request().RequestURI, "error", err)
		msg = http.StatusText(code)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}
