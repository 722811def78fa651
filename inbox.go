package junksite

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/junksite/notify"
)

// Submission kinds used as metric labels.
const (
	kindNewsletter = "newsletter"
	kindContact    = "contact"
)

type subscribeRequest struct {
	Email string `json:"email" form:"email"`
}

type contactRequest struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Phone   string `json:"phone" form:"phone"`
	Service string `json:"service" form:"service"`
	Message string `json:"message" form:"message"`
}

func (a *App) allowForm(c echo.Context) error {
	if !a.formLimiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many submissions. Try again later.")
	}
	return nil
}

func (a *App) handleSubscribe(c echo.Context) error {
	if err := a.allowForm(c); err != nil {
		return err
	}
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	ctx := c.Request().Context()
	sub, err := a.Store.AddSubscriber(ctx, req.Email)
	if err != nil {
		return storeError(err)
	}
	a.Metrics.IncSubmission(kindNewsletter)
	a.publish(ctx, notify.Event{
		Kind:       notify.NewsletterSubscribed,
		ID:         sub.ID,
		Attributes: map[string]string{"email": sub.Email},
		OccurredAt: sub.CreatedAt,
	})
	return c.JSON(http.StatusCreated, sub)
}

func (a *App) handleContact(c echo.Context) error {
	if err := a.allowForm(c); err != nil {
		return err
	}
	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	ctx := c.Request().Context()
	contact, err := a.Store.SaveContact(ctx, ContactSubmission{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Service: req.Service,
		Message: req.Message,
	})
	if err != nil {
		return storeError(err)
	}
	a.Metrics.IncSubmission(kindContact)
	a.publish(ctx, notify.Event{
		Kind: notify.ContactSubmitted,
		ID:   contact.ID,
		Attributes: map[string]string{
			"name":    contact.Name,
			"service": contact.Service,
		},
		OccurredAt: contact.CreatedAt,
	})
	return c.JSON(http.StatusCreated, contact)
}

func (a *App) handleListSubscribers(c echo.Context) error {
	subs, err := a.Store.ListSubscribers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, subs)
}

func (a *App) handleDeleteSubscriber(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid id")
	}
	if err := a.Store.DeleteSubscriber(c.Request().Context(), id); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleListContacts(c echo.Context) error {
	contacts, err := a.Store.ListContacts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contacts)
}

func (a *App) handleDeleteContact(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid id")
	}
	if err := a.Store.DeleteContact(c.Request().Context(), id); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
