package http

import (
	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const (
	msgEmailSent  = "Email Sent"
	msgSendFailed = "error in sending mail"
)

// SendEmailResponse echoes the request with the send verdict. The HTTP status
// is always 200; StatusCode carries the outcome.
type SendEmailResponse struct {
	StatusCode int                   `json:"status_code"`
	Email      *domain.OutboundEmail `json:"email"`
	Message    string                `json:"message"`
}

type FetchEmailsResponse struct {
	StatusCode int `json:"status_code"`
	Count      int `json:"count"`
}

type RecentEmailsResponse struct {
	StatusCode int               `json:"status_code"`
	Emails     []*domain.Message `json:"emails"`
}

type EmailHandler struct {
	service in.EmailService
}

func NewEmailHandler(service in.EmailService) *EmailHandler {
	return &EmailHandler{service: service}
}

func (h *EmailHandler) Register(router fiber.Router) {
	router.Post("/send", h.Send)
	router.Get("/fetch", h.Fetch)
	router.Get("/recent", h.Recent)
	router.Get("/status", h.Status)
}

func (h *EmailHandler) Send(c *fiber.Ctx) error {
	var req domain.OutboundEmail
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if len(req.Recipients) == 0 {
		return apperr.MissingField("recipients")
	}

	// Past this point the outcome is reported in the body, never as an HTTP status.
	ok, err := h.service.Send(c.UserContext(), &req)
	if err != nil {
		log := logger.WithContext(c.UserContext()).WithError(err)
		if apperr.IsCode(err, apperr.CodeValidationFailed) {
			log.Warn("send rejected")
		} else {
			log.Error("send failed")
		}
	}
	if err != nil || !ok {
		return c.JSON(SendEmailResponse{StatusCode: fiber.StatusInternalServerError, Email: &req, Message: msgSendFailed})
	}
	return c.JSON(SendEmailResponse{StatusCode: fiber.StatusOK, Email: &req, Message: msgEmailSent})
}

// Fetch runs one sync tick. A tick already in progress counts as zero new messages.
func (h *EmailHandler) Fetch(c *fiber.Ctx) error {
	stored, err := h.service.Sync(c.UserContext())
	if apperr.IsCode(err, apperr.CodeSyncInProgress) {
		return c.JSON(FetchEmailsResponse{StatusCode: fiber.StatusOK, Count: 0})
	}
	if err != nil {
		return err
	}
	return c.JSON(FetchEmailsResponse{StatusCode: fiber.StatusOK, Count: len(stored)})
}

func (h *EmailHandler) Recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)

	emails, err := h.service.ListRecent(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(RecentEmailsResponse{StatusCode: fiber.StatusOK, Emails: emails})
}

func (h *EmailHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.service.Status())
}
