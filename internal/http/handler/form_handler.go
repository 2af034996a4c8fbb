package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/service"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FormDeps groups dependencies required by the public form endpoints.
type FormDeps struct {
	Logger   *zap.Logger
	Resolver service.LinkResolver
	Recorder service.ResponseRecorder
	Health   Pinger
}

// FormHandler serves the endpoints a form renderer calls with a link token.
type FormHandler struct {
	logger   *zap.Logger
	resolver service.LinkResolver
	recorder service.ResponseRecorder
	health   Pinger
}

// NewFormHandler creates a form handler with the provided dependencies.
func NewFormHandler(deps FormDeps) *FormHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormHandler{
		logger:   logger,
		resolver: deps.Resolver,
		recorder: deps.Recorder,
		health:   deps.Health,
	}
}

// RegisterHealth wires the liveness endpoints.
func (h *FormHandler) RegisterHealth(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
}

// Register wires the token routes onto the provided router.
func (h *FormHandler) Register(router fiber.Router) {
	router.Get("/q/:token", h.Resolve)
	router.Post("/q/:token", h.Submit)
}

// Health reports service status, including store reachability when configured.
func (h *FormHandler) Health(c *fiber.Ctx) error {
	status := fiber.Map{
		"service": "PowerForm",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.health == nil {
		return c.JSON(status)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

// QuestionnaireView is the questionnaire part of a resolved link.
type QuestionnaireView struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Fields      []model.FieldSpec `json:"fields"`
}

// ClientView is the known client of a resolved link.
type ClientView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ResolveResponse is the body of GET /q/:token.
type ResolveResponse struct {
	Token         string            `json:"token"`
	Questionnaire QuestionnaireView `json:"questionnaire"`
	Client        *ClientView       `json:"client"`
	IsUsed        bool              `json:"isUsed"`
	ExpiresAt     *time.Time        `json:"expiresAt"`
}

// Resolve handles GET /q/:token
func (h *FormHandler) Resolve(c *fiber.Ctx) error {
	resolved, err := h.resolver.ResolveLink(c.UserContext(), c.Params("token"))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	q := resolved.Questionnaire
	resp := ResolveResponse{
		Token: resolved.Token,
		Questionnaire: QuestionnaireView{
			ID:          q.ID,
			Title:       q.Title,
			Description: q.Description,
			Fields:      q.Fields,
		},
		IsUsed:    resolved.IsUsed,
		ExpiresAt: resolved.ExpiresAt,
	}
	if resolved.Client != nil {
		resp.Client = &ClientView{
			ID:    resolved.Client.ID,
			Name:  resolved.Client.Name,
			Email: resolved.Client.Email,
		}
	}
	return c.JSON(resp)
}

// SubmitRequest represents the request body for submitting answers.
type SubmitRequest struct {
	Answers json.RawMessage `json:"answers"`
	Contact service.Contact `json:"contact"`
}

// Submit handles POST /q/:token
func (h *FormHandler) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	result, err := h.recorder.SubmitResponse(c.UserContext(), service.SubmitInput{
		Token:   c.Params("token"),
		Answers: req.Answers,
		Contact: req.Contact,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}
