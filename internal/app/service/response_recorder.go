package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/repository"
	metrics "github.com/sifan077/PowerForm/internal/infra/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	// MaxAnswersBytes bounds a submitted answer document.
	MaxAnswersBytes = 64 << 10

	defaultListLimit = 20
	maxListLimit     = 100
)

// ResponseRecorder consumes links and manages the recorded responses.
type ResponseRecorder interface {
	SubmitResponse(ctx context.Context, input SubmitInput) (*SubmitResult, error)
	ListResponses(ctx context.Context, input ListResponsesInput) (*ResponsePage, error)
	AttachResponseToClient(ctx context.Context, responseID, clientID string) (*model.Response, error)
}

// Contact is optional respondent information sent next to the answers.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmitInput captures one submission against a link.
type SubmitInput struct {
	Token   string
	Answers json.RawMessage
	Contact Contact
}

// SubmitResult identifies the recorded response.
type SubmitResult struct {
	ResponseID string `json:"responseId"`
}

// ListResponsesInput filters and pages ListResponses.
type ListResponsesInput struct {
	QuestionnaireID string
	ClientID        string
	Limit           int
	Offset          int
}

// ResponsePage is one page of responses plus the unpaged total.
type ResponsePage struct {
	Responses []model.Response `json:"responses"`
	Total     int64            `json:"total"`
}

// RecorderDeps groups dependencies required by the response recorder.
type RecorderDeps struct {
	Logger    *zap.Logger
	Resolver  LinkResolver
	Responses repository.ResponseRepository
	Identity  ClientIdentityMapper
	Notifier  Notifier
	Now       func() time.Time
}

// linkLookup resolves a link without counting it as a resolution.
type linkLookup interface {
	resolve(ctx context.Context, token string) (*ResolvedLink, error)
}

type responseRecorder struct {
	logger    *zap.Logger
	resolve   func(ctx context.Context, token string) (*ResolvedLink, error)
	responses repository.ResponseRepository
	identity  ClientIdentityMapper
	notifier  Notifier
	now       func() time.Time
}

// NewResponseRecorder returns a ResponseRecorder.
func NewResponseRecorder(deps RecorderDeps) ResponseRecorder {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := deps.Identity
	if identity == nil {
		identity = NewClientIdentityMapper("", nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	var resolve func(ctx context.Context, token string) (*ResolvedLink, error)
	switch r := deps.Resolver.(type) {
	case linkLookup:
		resolve = r.resolve
	case LinkResolver:
		resolve = r.ResolveLink
	}
	return &responseRecorder{
		logger:    logger,
		resolve:   resolve,
		responses: deps.Responses,
		identity:  identity,
		notifier:  deps.Notifier,
		now:       now,
	}
}

func (s *responseRecorder) SubmitResponse(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	result, err := s.submit(ctx, input)
	metrics.Submissions.WithLabelValues(outcomeOf(err)).Inc()
	return result, err
}

func (s *responseRecorder) submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	answers, err := normalizeAnswers(input.Answers)
	if err != nil {
		return nil, err
	}
	contact, err := normalizeContact(input.Contact)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolve(ctx, input.Token)
	if err != nil {
		return nil, fmt.Errorf("submit response: %w", err)
	}
	if resolved.IsUsed {
		return nil, fmt.Errorf("submit response: %w", repository.ErrLinkAlreadyConsumed)
	}

	name, email := respondent(contact, resolved.Client, answers)
	now := s.now().UTC()
	resp := &model.Response{
		ID:              uuid.NewString(),
		QuestionnaireID: resolved.Questionnaire.ID,
		ClientID:        resolved.ClientID,
		Token:           resolved.Token,
		Answers:         datatypes.JSON(answers),
		ClientName:      name,
		ClientEmail:     email,
		SubmittedAt:     now,
	}

	if err := s.responses.ConsumeAndRecord(ctx, resp, now); err != nil {
		// The link may have lapsed between resolving and consuming it.
		if errors.Is(err, apperr.ErrAlreadyConsumed) && resolved.ExpiresAt != nil && !now.Before(*resolved.ExpiresAt) {
			return nil, fmt.Errorf("submit response: %w", apperr.ErrExpired)
		}
		return nil, fmt.Errorf("submit response: %w", err)
	}

	s.logger.Info("response recorded",
		zap.String("response_id", resp.ID),
		zap.String("questionnaire_id", resp.QuestionnaireID),
		zap.Bool("has_client", resp.ClientID != nil),
	)

	if s.notifier != nil {
		s.notifier.Notify(NotifyInput{
			ResponseID:    resp.ID,
			Questionnaire: resolved.Questionnaire,
			Answers:       json.RawMessage(answers),
			ClientName:    name,
			ClientEmail:   email,
		})
	}

	return &SubmitResult{ResponseID: resp.ID}, nil
}

func (s *responseRecorder) ListResponses(ctx context.Context, input ListResponsesInput) (*ResponsePage, error) {
	if input.Offset < 0 {
		return nil, apperr.Invalid("offset", "must not be negative")
	}
	limit := input.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	clientID := ""
	if input.ClientID != "" {
		mapped, err := s.identity.MapIdentifier(ctx, input.ClientID)
		if err != nil {
			return nil, fmt.Errorf("list responses: %w", err)
		}
		clientID = mapped
	}

	responses, total, err := s.responses.List(ctx, repository.ResponseFilter{
		QuestionnaireID: strings.TrimSpace(input.QuestionnaireID),
		ClientID:        clientID,
		Limit:           limit,
		Offset:          input.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	if responses == nil {
		responses = []model.Response{}
	}
	return &ResponsePage{Responses: responses, Total: total}, nil
}

func (s *responseRecorder) AttachResponseToClient(ctx context.Context, responseID, clientID string) (*model.Response, error) {
	if _, err := uuid.Parse(responseID); err != nil {
		return nil, apperr.Invalid("responseId", "must be a uuid")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, apperr.Invalid("clientId", "is required")
	}

	canonical, err := s.identity.MapIdentifier(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("attach response: %w", err)
	}

	resp, err := s.responses.AttachClient(ctx, responseID, canonical)
	if err != nil {
		return nil, fmt.Errorf("attach response: %w", err)
	}
	s.logger.Info("response attached to client",
		zap.String("response_id", responseID),
		zap.String("client_id", canonical),
	)
	return resp, nil
}

// normalizeAnswers checks that raw is a JSON object within size limits. The
// bytes are kept as sent.
func normalizeAnswers(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, apperr.Invalid("answers", "is required")
	}
	if len(trimmed) > MaxAnswersBytes {
		return nil, apperr.Invalid("answers", fmt.Sprintf("exceeds %d bytes", MaxAnswersBytes))
	}
	if !utf8.Valid(trimmed) {
		return nil, apperr.Invalid("answers", "must be valid UTF-8")
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, apperr.Invalid("answers", "must be a JSON object")
	}
	return trimmed, nil
}

func normalizeContact(c Contact) (Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if c.Email != "" {
		addr, err := mail.ParseAddress(c.Email)
		if err != nil {
			return c, apperr.Invalid("contact.email", "is not a valid address")
		}
		c.Email = addr.Address
	}
	return c, nil
}

// respondent picks the name and address stored with a response: explicit
// contact details first, then the link's client, then the reserved answer keys.
func respondent(contact Contact, client *model.Client, answers []byte) (string, string) {
	name, email := contact.Name, contact.Email
	if client != nil {
		name = firstNonEmpty(name, client.Name)
		email = firstNonEmpty(email, client.Email)
	}
	if name != "" && email != "" {
		return name, email
	}

	var reserved struct {
		Name  interface{} `json:"clientName"`
		Email interface{} `json:"clientEmail"`
	}
	if err := json.Unmarshal(answers, &reserved); err == nil {
		if s, ok := reserved.Name.(string); ok {
			name = firstNonEmpty(name, strings.TrimSpace(s))
		}
		if s, ok := reserved.Email.(string); ok {
			if addr, err := mail.ParseAddress(strings.TrimSpace(s)); err == nil {
				email = firstNonEmpty(email, addr.Address)
			}
		}
	}
	return name, email
}
