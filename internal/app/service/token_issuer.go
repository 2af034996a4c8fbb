package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/repository"
	metrics "github.com/sifan077/PowerForm/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultExpiryDays applies when neither the caller nor the deployment sets one.
	DefaultExpiryDays = 30
	// MaxExpiryDays is the longest lifetime a caller may request.
	MaxExpiryDays = 3650

	tokenBytes          = 32
	maxTokenGenerations = 3
)

// Questionnaire resolution paths, also used as metric labels.
const (
	sourceExplicit     = "explicit"
	sourceLegacy       = "legacy_survey"
	sourceOldestActive = "oldest_active"
	sourceDefault      = "default"
)

// TokenIssuer mints questionnaire links.
type TokenIssuer interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*CreatedLink, error)
}

// CreateLinkInput captures data required to mint a link. Every field is optional.
type CreateLinkInput struct {
	ClientID        string
	QuestionnaireID string
	// ExpiryDays overrides the default lifetime; zero means the link never expires.
	ExpiryDays *int
}

// CreatedLink is what a caller hands to the client.
type CreatedLink struct {
	Token           string     `json:"token"`
	URL             string     `json:"link"`
	QuestionnaireID string     `json:"questionnaireId"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

// IssuerDeps groups dependencies required by the token issuer.
type IssuerDeps struct {
	Logger         *zap.Logger
	Links          repository.LinkRepository
	Questionnaires repository.QuestionnaireRepository
	LegacySurveys  repository.LegacySurveyRepository
	Identity       ClientIdentityMapper
	PublicBaseURL  string
	// ExpiryDays is the deployment default; zero or less means DefaultExpiryDays.
	ExpiryDays     int
	Now            func() time.Time
	Random         io.Reader
}

type tokenIssuer struct {
	logger         *zap.Logger
	links          repository.LinkRepository
	questionnaires repository.QuestionnaireRepository
	source         questionnaireSource
	identity       ClientIdentityMapper
	baseURL        string
	expiryDays     int
	now            func() time.Time
	random         io.Reader
}

// NewTokenIssuer returns a TokenIssuer backed by the given repositories.
func NewTokenIssuer(deps IssuerDeps) TokenIssuer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := deps.Identity
	if identity == nil {
		identity = NewClientIdentityMapper("", nil)
	}
	expiryDays := deps.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = DefaultExpiryDays
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	random := deps.Random
	if random == nil {
		random = rand.Reader
	}
	return &tokenIssuer{
		logger:         logger,
		links:          deps.Links,
		questionnaires: deps.Questionnaires,
		source:         questionnaireSource{questionnaires: deps.Questionnaires, legacy: deps.LegacySurveys},
		identity:       identity,
		baseURL:        strings.TrimRight(deps.PublicBaseURL, "/"),
		expiryDays:     expiryDays,
		now:            now,
		random:         random,
	}
}

func (s *tokenIssuer) CreateLink(ctx context.Context, input CreateLinkInput) (*CreatedLink, error) {
	days := s.expiryDays
	if input.ExpiryDays != nil {
		if *input.ExpiryDays < 0 {
			return nil, apperr.Invalid("expiryDays", "must not be negative")
		}
		if *input.ExpiryDays > MaxExpiryDays {
			return nil, apperr.Invalid("expiryDays", fmt.Sprintf("must not exceed %d", MaxExpiryDays))
		}
		days = *input.ExpiryDays
	}

	questionnaire, source, err := s.resolveQuestionnaire(ctx, strings.TrimSpace(input.QuestionnaireID))
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	var clientID *string
	if input.ClientID != "" {
		mapped, err := s.identity.MapIdentifier(ctx, input.ClientID)
		if err != nil {
			return nil, fmt.Errorf("create link: %w", err)
		}
		if mapped != "" {
			clientID = &mapped
		}
	}

	now := s.now().UTC()
	link := &model.Link{
		QuestionnaireID: questionnaire.ID,
		ClientID:        clientID,
		CreatedAt:       now,
	}
	if days > 0 {
		expires := now.AddDate(0, 0, days)
		link.ExpiresAt = &expires
	}

	if err := s.insertWithFreshToken(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	metrics.LinksIssued.WithLabelValues(source).Inc()
	s.logger.Info("questionnaire link issued",
		zap.String("questionnaire_id", questionnaire.ID),
		zap.String("source", source),
		zap.Bool("has_client", clientID != nil),
		zap.Int("expiry_days", days),
	)

	return &CreatedLink{
		Token:           link.Token,
		URL:             s.linkURL(link.Token),
		QuestionnaireID: questionnaire.ID,
		ExpiresAt:       link.ExpiresAt,
	}, nil
}

func (s *tokenIssuer) linkURL(token string) string {
	return s.baseURL + "/q/" + token
}

// insertWithFreshToken persists link under a newly generated token, drawing a
// new one if the store reports a collision.
func (s *tokenIssuer) insertWithFreshToken(ctx context.Context, link *model.Link) error {
	for i := 0; i < maxTokenGenerations; i++ {
		token, err := newToken(s.random)
		if err != nil {
			return err
		}
		link.Token = token

		err = s.links.Create(ctx, link)
		if !errors.Is(err, repository.ErrTokenCollision) {
			return err
		}
		s.logger.Warn("token collision, regenerating")
	}
	return repository.ErrTokenCollision
}

func newToken(random io.Reader) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *tokenIssuer) resolveQuestionnaire(ctx context.Context, id string) (*model.Questionnaire, string, error) {
	if id != "" {
		q, err := s.source.find(ctx, id)
		switch {
		case err == nil && q.IsActive:
			return q, sourceExplicit, nil
		case err == nil:
			return nil, "", apperr.Invalid("questionnaireId", "questionnaire is not active")
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, "", err
		}

		q, err = s.convertLegacy(ctx, id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, "", repository.ErrQuestionnaireNotFound
			}
			return nil, "", err
		}
		return q, sourceLegacy, nil
	}

	q, err := s.questionnaires.OldestActive(ctx)
	if err == nil {
		return q, sourceOldestActive, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, "", err
	}

	q, err = s.ensureDefault(ctx)
	if err != nil {
		return nil, "", err
	}
	return q, sourceDefault, nil
}

func (s *tokenIssuer) convertLegacy(ctx context.Context, surveyID string) (*model.Questionnaire, error) {
	q, err := s.source.deriveFromLegacy(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if err := s.persistOnce(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Info("legacy survey converted",
		zap.String("survey_id", surveyID),
		zap.String("questionnaire_id", q.ID),
		zap.Int("fields", len(q.Fields)),
	)
	return q, nil
}

func (s *tokenIssuer) ensureDefault(ctx context.Context) (*model.Questionnaire, error) {
	q, err := s.questionnaires.GetBySlug(ctx, model.DefaultQuestionnaireSlug)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	q = &model.Questionnaire{
		ID:          uuid.NewString(),
		Slug:        model.DefaultQuestionnaireSlug,
		Title:       "Project questionnaire",
		Description: "Tell us a little about yourself and your project.",
		Fields:      model.DefaultFields(),
		IsActive:    true,
	}
	if err := s.persistOnce(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Info("default questionnaire created", zap.String("questionnaire_id", q.ID))
	return q, nil
}

// persistOnce inserts q. When a concurrent caller already inserted the same
// slug, that row is adopted instead.
func (s *tokenIssuer) persistOnce(ctx context.Context, q *model.Questionnaire) error {
	createErr := s.questionnaires.Create(ctx, q)
	if createErr == nil {
		return nil
	}
	existing, err := s.questionnaires.GetBySlug(ctx, q.Slug)
	if err != nil {
		return createErr
	}
	*q = *existing
	return nil
}
