package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/repository"
)

// memStore keeps links and responses in memory. Consumption is a
// compare-and-set under one mutex, like the conditional UPDATE it stands in for.
type memStore struct {
	mu        sync.Mutex
	links     map[string]model.Link
	responses []model.Response
	createErr error
}

func newMemStore() *memStore {
	return &memStore{links: make(map[string]model.Link)}
}

func (s *memStore) Create(_ context.Context, link *model.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.links[link.Token]; ok {
		return repository.ErrTokenCollision
	}
	s.links[link.Token] = *link
	return nil
}

func (s *memStore) GetByToken(_ context.Context, token string) (*model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[token]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return &link, nil
}

func (s *memStore) ConsumeAndRecord(_ context.Context, resp *model.Response, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[resp.Token]
	if !ok || link.IsUsed || (link.ExpiresAt != nil && !link.ExpiresAt.After(now)) {
		return repository.ErrLinkAlreadyConsumed
	}
	link.IsUsed = true
	s.links[resp.Token] = link
	s.responses = append(s.responses, *resp)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.responses {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, repository.ErrResponseNotFound
}

func (s *memStore) List(_ context.Context, filter repository.ResponseFilter) ([]model.Response, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []model.Response
	for _, r := range s.responses {
		if filter.QuestionnaireID != "" && r.QuestionnaireID != filter.QuestionnaireID {
			continue
		}
		if filter.ClientID != "" && (r.ClientID == nil || *r.ClientID != filter.ClientID) {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})
	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memStore) AttachClient(_ context.Context, id, clientID string) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.responses {
		if s.responses[i].ID == id {
			s.responses[i].ClientID = &clientID
			r := s.responses[i]
			return &r, nil
		}
	}
	return nil, repository.ErrResponseNotFound
}

func (s *memStore) responsesFor(token string) []model.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Response
	for _, r := range s.responses {
		if r.Token == token {
			out = append(out, r)
		}
	}
	return out
}

type memQuestionnaires struct {
	mu      sync.Mutex
	items   []model.Questionnaire
	created int
}

func (m *memQuestionnaires) Create(_ context.Context, q *model.Questionnaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.CreatedAt = time.Now()
	m.items = append(m.items, *q)
	m.created++
	return nil
}

func (m *memQuestionnaires) GetByID(_ context.Context, id string) (*model.Questionnaire, error) {
	return m.find(func(q model.Questionnaire) bool { return q.ID == id })
}

func (m *memQuestionnaires) GetBySlug(_ context.Context, slug string) (*model.Questionnaire, error) {
	return m.find(func(q model.Questionnaire) bool { return q.Slug == slug })
}

func (m *memQuestionnaires) OldestActive(_ context.Context) (*model.Questionnaire, error) {
	return m.find(func(q model.Questionnaire) bool { return q.IsActive })
}

func (m *memQuestionnaires) find(match func(model.Questionnaire) bool) (*model.Questionnaire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.items {
		if match(q) {
			q := q
			return &q, nil
		}
	}
	return nil, repository.ErrQuestionnaireNotFound
}

type mockLegacySurveys struct {
	getFn func(ctx context.Context, id string) (*model.LegacySurvey, error)
}

func (m *mockLegacySurveys) GetByID(ctx context.Context, id string) (*model.LegacySurvey, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrLegacySurveyNotFound
}

type mockDirectory struct {
	findFn func(ctx context.Context, ref string) (*model.Client, error)
}

func (m *mockDirectory) FindByReference(ctx context.Context, ref string) (*model.Client, error) {
	if m.findFn != nil {
		return m.findFn(ctx, ref)
	}
	return nil, repository.ErrClientNotFound
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []NotifyInput
}

func (n *recordingNotifier) Notify(input NotifyInput) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, input)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inputs)
}

// harness wires the services over the in-memory fakes.
type harness struct {
	clock          *fakeClock
	store          *memStore
	questionnaires *memQuestionnaires
	legacy         *mockLegacySurveys
	directory      *mockDirectory
	notifier       *recordingNotifier

	issuer   TokenIssuer
	resolver LinkResolver
	recorder ResponseRecorder
}

func newHarness() *harness {
	h := &harness{
		clock:          newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		store:          newMemStore(),
		questionnaires: &memQuestionnaires{},
		legacy:         &mockLegacySurveys{},
		directory:      &mockDirectory{},
		notifier:       &recordingNotifier{},
	}
	h.issuer = NewTokenIssuer(IssuerDeps{
		Links:          h.store,
		Questionnaires: h.questionnaires,
		LegacySurveys:  h.legacy,
		PublicBaseURL:  "https://forms.example.com/",
		Now:            h.clock.Now,
	})
	h.resolver = NewLinkResolver(ResolverDeps{
		Links:          h.store,
		Questionnaires: h.questionnaires,
		LegacySurveys:  h.legacy,
		Clients:        h.directory,
		Now:            h.clock.Now,
	})
	h.recorder = NewResponseRecorder(RecorderDeps{
		Resolver:  h.resolver,
		Responses: h.store,
		Notifier:  h.notifier,
		Now:       h.clock.Now,
	})
	return h
}

func intPtr(v int) *int { return &v }
