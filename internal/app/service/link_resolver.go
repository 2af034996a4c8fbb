package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/repository"
	metrics "github.com/sifan077/PowerForm/internal/infra/prometheus"
	"go.uber.org/zap"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// ValidateToken rejects strings that cannot be a link token.
func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return apperr.Invalid("token", "malformed link token")
	}
	return nil
}

// LinkResolver loads a link together with what a form renderer needs to show it.
type LinkResolver interface {
	ResolveLink(ctx context.Context, token string) (*ResolvedLink, error)
}

// ResolvedLink is the render view of a live link.
type ResolvedLink struct {
	Token         string               `json:"token"`
	Questionnaire *model.Questionnaire `json:"questionnaire"`
	Client        *model.Client        `json:"client"`
	ClientID      *string              `json:"clientId,omitempty"`
	IsUsed        bool                 `json:"isUsed"`
	ExpiresAt     *time.Time           `json:"expiresAt"`
}

// ResolverDeps groups dependencies required by the link resolver.
type ResolverDeps struct {
	Logger         *zap.Logger
	Links          repository.LinkRepository
	Questionnaires repository.QuestionnaireRepository
	LegacySurveys  repository.LegacySurveyRepository
	Clients        repository.ClientDirectory
	Now            func() time.Time
}

type linkResolver struct {
	logger  *zap.Logger
	links   repository.LinkRepository
	source  questionnaireSource
	clients repository.ClientDirectory
	now     func() time.Time
}

// NewLinkResolver returns a read-only LinkResolver.
func NewLinkResolver(deps ResolverDeps) LinkResolver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &linkResolver{
		logger:  logger,
		links:   deps.Links,
		source:  questionnaireSource{questionnaires: deps.Questionnaires, legacy: deps.LegacySurveys},
		clients: deps.Clients,
		now:     now,
	}
}

func (r *linkResolver) ResolveLink(ctx context.Context, token string) (*ResolvedLink, error) {
	resolved, err := r.resolve(ctx, token)
	metrics.LinkResolutions.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *linkResolver) resolve(ctx context.Context, token string) (*ResolvedLink, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	link, err := r.links.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve link: %w", err)
	}
	if link.ExpiredAt(r.now()) {
		return nil, fmt.Errorf("resolve link: %w", apperr.ErrExpired)
	}

	questionnaire, err := r.questionnaire(ctx, link.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("resolve link: %w", err)
	}

	return &ResolvedLink{
		Token:         link.Token,
		Questionnaire: questionnaire,
		Client:        r.client(ctx, link.ClientID),
		ClientID:      link.ClientID,
		IsUsed:        link.IsUsed,
		ExpiresAt:     link.ExpiresAt,
	}, nil
}

// questionnaire loads the questionnaire a link points at. Links minted against
// a legacy survey id before conversion existed are rendered from the survey.
func (r *linkResolver) questionnaire(ctx context.Context, id string) (*model.Questionnaire, error) {
	q, err := r.source.find(ctx, id)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return q, err
	}

	q, err = r.source.deriveFromLegacy(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, repository.ErrQuestionnaireNotFound
		}
		return nil, err
	}
	// Not persisted here; keep the id the link refers to.
	q.ID = id
	return q, nil
}

// client is a best-effort lookup; a missing directory entry leaves it nil.
func (r *linkResolver) client(ctx context.Context, clientID *string) *model.Client {
	if clientID == nil || *clientID == "" || r.clients == nil {
		return nil
	}
	client, err := r.clients.FindByReference(ctx, *clientID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			r.logger.Warn("client lookup failed", zap.String("client_id", *clientID), zap.Error(err))
		}
		return nil
	}
	return client
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperr.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, apperr.ErrExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, apperr.ErrAlreadyConsumed):
		return metrics.OutcomeAlreadyConsumed
	case errors.Is(err, apperr.ErrValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
