package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerForm/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger   *zap.Logger
	Issuer   service.TokenIssuer
	Recorder service.ResponseRecorder
}

// APIHandler implements the operator API endpoints.
type APIHandler struct {
	logger   *zap.Logger
	issuer   service.TokenIssuer
	recorder service.ResponseRecorder
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:   logger,
		issuer:   deps.Issuer,
		recorder: deps.Recorder,
	}
}

// Register wires API routes onto the provided router. Authentication is the
// caller's concern.
func (h *APIHandler) Register(router fiber.Router, auth ...fiber.Handler) {
	api := router.Group("/api", auth...)
	{
		api.Post("/links", h.CreateLink)

		responses := api.Group("/responses")
		{
			responses.Get("/", h.ListResponses)
			responses.Post("/:id/client", h.AttachClient)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	ClientID        string `json:"clientId,omitempty"`
	QuestionnaireID string `json:"questionnaireId,omitempty"`
	ExpiryDays      *int   `json:"expiryDays,omitempty"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	link, err := h.issuer.CreateLink(c.UserContext(), service.CreateLinkInput{
		ClientID:        req.ClientID,
		QuestionnaireID: req.QuestionnaireID,
		ExpiryDays:      req.ExpiryDays,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

// ListResponses handles GET /api/responses
func (h *APIHandler) ListResponses(c *fiber.Ctx) error {
	page, err := h.recorder.ListResponses(c.UserContext(), service.ListResponsesInput{
		QuestionnaireID: c.Query("questionnaireId"),
		ClientID:        c.Query("clientId"),
		Limit:           c.QueryInt("limit"),
		Offset:          c.QueryInt("offset"),
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(page)
}

// AttachClientRequest represents the request body for attaching a response.
type AttachClientRequest struct {
	ClientID string `json:"clientId"`
}

// AttachClient handles POST /api/responses/:id/client
func (h *APIHandler) AttachClient(c *fiber.Ctx) error {
	var req AttachClientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resp, err := h.recorder.AttachResponseToClient(c.UserContext(), c.Params("id"), req.ClientID)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(resp)
}
