package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sifan077/PowerForm/config"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/app/repository"
	metrics "github.com/sifan077/PowerForm/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseRecorder_SubmitThenResubmit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
	require.NoError(t, err)

	result, err := h.recorder.SubmitResponse(ctx, SubmitInput{
		Token:   created.Token,
		Answers: []byte(`{"field1":"x"}`),
		Contact: Contact{Name: "Jane", Email: "jane@x.com"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ResponseID)

	resolved, err := h.resolver.ResolveLink(ctx, created.Token)
	require.NoError(t, err)
	assert.True(t, resolved.IsUsed)

	_, err = h.recorder.SubmitResponse(ctx, SubmitInput{Token: created.Token, Answers: []byte(`{"field1":"y"}`)})
	assert.ErrorIs(t, err, apperr.ErrAlreadyConsumed)

	rows := h.store.responsesFor(created.Token)
	require.Len(t, rows, 1)
	assert.Equal(t, result.ResponseID, rows[0].ID)
	assert.Equal(t, "Jane", rows[0].ClientName)
	assert.Equal(t, "jane@x.com", rows[0].ClientEmail)
	assert.Equal(t, created.QuestionnaireID, rows[0].QuestionnaireID)
	assert.Equal(t, 1, h.notifier.count())
}

func TestResponseRecorder_SubmitIsNotCountedAsResolution(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	live, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
	require.NoError(t, err)
	lapsed, err := h.issuer.CreateLink(ctx, CreateLinkInput{ExpiryDays: intPtr(1)})
	require.NoError(t, err)

	resolvedOK := testutil.ToFloat64(metrics.LinkResolutions.WithLabelValues(metrics.OutcomeOK))
	resolvedExpired := testutil.ToFloat64(metrics.LinkResolutions.WithLabelValues(metrics.OutcomeExpired))
	submittedOK := testutil.ToFloat64(metrics.Submissions.WithLabelValues(metrics.OutcomeOK))
	submittedExpired := testutil.ToFloat64(metrics.Submissions.WithLabelValues(metrics.OutcomeExpired))

	_, err = h.recorder.SubmitResponse(ctx, SubmitInput{Token: live.Token, Answers: []byte(`{}`)})
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)
	_, err = h.recorder.SubmitResponse(ctx, SubmitInput{Token: lapsed.Token, Answers: []byte(`{}`)})
	require.ErrorIs(t, err, apperr.ErrExpired)

	assert.Equal(t, resolvedOK, testutil.ToFloat64(metrics.LinkResolutions.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, resolvedExpired, testutil.ToFloat64(metrics.LinkResolutions.WithLabelValues(metrics.OutcomeExpired)))
	assert.Equal(t, submittedOK+1, testutil.ToFloat64(metrics.Submissions.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, submittedExpired+1, testutil.ToFloat64(metrics.Submissions.WithLabelValues(metrics.OutcomeExpired)))
}

func TestResponseRecorder_ConcurrentSubmissions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
	require.NoError(t, err)

	const attempts = 16
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		errs      = make([]error, attempts)
		successes int
		consumed  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.recorder.SubmitResponse(ctx, SubmitInput{
				Token:   created.Token,
				Answers: []byte(`{"message":"double click"}`),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, apperr.ErrAlreadyConsumed):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, consumed)
	assert.Len(t, h.store.responsesFor(created.Token), 1)
	assert.Equal(t, 1, h.notifier.count())
}

func TestResponseRecorder_AnswersRoundTripByteForByte(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
	require.NoError(t, err)

	answers := `{"zeta": 1.50, "alpha":"café ☕",  "list":[3,1,2], "nested":{"b":null,"a":true}}`
	_, err = h.recorder.SubmitResponse(ctx, SubmitInput{Token: created.Token, Answers: []byte(answers)})
	require.NoError(t, err)

	page, err := h.recorder.ListResponses(ctx, ListResponsesInput{QuestionnaireID: created.QuestionnaireID})
	require.NoError(t, err)
	require.Len(t, page.Responses, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, answers, string(page.Responses[0].Answers))
}

func TestResponseRecorder_RespondentFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		client    *model.Client
		contact   Contact
		answers   string
		wantName  string
		wantEmail string
	}{
		{
			name:      "contact wins",
			client:    &model.Client{ID: "c1", Name: "Directory Name", Email: "dir@x.com"},
			contact:   Contact{Name: "Jane", Email: "jane@x.com"},
			answers:   `{"clientName":"Answer Name"}`,
			wantName:  "Jane",
			wantEmail: "jane@x.com",
		},
		{
			name:      "link client",
			client:    &model.Client{ID: "c1", Name: "Directory Name", Email: "dir@x.com"},
			answers:   `{"clientName":"Answer Name","clientEmail":"answer@x.com"}`,
			wantName:  "Directory Name",
			wantEmail: "dir@x.com",
		},
		{
			name:      "reserved answer keys",
			answers:   `{"clientName":" Answer Name ","clientEmail":"answer@x.com"}`,
			wantName:  "Answer Name",
			wantEmail: "answer@x.com",
		},
		{
			name:    "unusable reserved keys",
			answers: `{"clientName":42,"clientEmail":"not-an-address"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.directory.findFn = func(ctx context.Context, ref string) (*model.Client, error) {
				if tt.client == nil {
					return nil, repository.ErrClientNotFound
				}
				return tt.client, nil
			}
			ctx := context.Background()

			created, err := h.issuer.CreateLink(ctx, CreateLinkInput{ClientID: "c1"})
			require.NoError(t, err)
			_, err = h.recorder.SubmitResponse(ctx, SubmitInput{
				Token:   created.Token,
				Answers: []byte(tt.answers),
				Contact: tt.contact,
			})
			require.NoError(t, err)

			rows := h.store.responsesFor(created.Token)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.wantName, rows[0].ClientName)
			assert.Equal(t, tt.wantEmail, rows[0].ClientEmail)
			require.NotNil(t, rows[0].ClientID)
			assert.Equal(t, "c1", *rows[0].ClientID)
		})
	}
}

func TestResponseRecorder_Validation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input SubmitInput
	}{
		{name: "missing answers", input: SubmitInput{Token: created.Token}},
		{name: "array answers", input: SubmitInput{Token: created.Token, Answers: []byte(`["a"]`)}},
		{name: "broken json", input: SubmitInput{Token: created.Token, Answers: []byte(`{"a":`)}},
		{name: "invalid utf-8", input: SubmitInput{Token: created.Token, Answers: []byte("{\"a\":\"\xff\xfe\"}")}},
		{name: "bad email", input: SubmitInput{Token: created.Token, Answers: []byte(`{}`), Contact: Contact{Email: "nope"}}},
		{name: "bad token", input: SubmitInput{Token: "x", Answers: []byte(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.recorder.SubmitResponse(ctx, tt.input)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.False(t, h.store.links[created.Token].IsUsed)
}

func TestResponseRecorder_ExpiredLink(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{ExpiryDays: intPtr(1)})
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)

	_, err = h.recorder.SubmitResponse(ctx, SubmitInput{Token: created.Token, Answers: []byte(`{}`)})
	assert.ErrorIs(t, err, apperr.ErrExpired)
	assert.Empty(t, h.store.responsesFor(created.Token))
}

func TestResponseRecorder_ExpiresWhileSubmitting(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{ExpiryDays: intPtr(1)})
	require.NoError(t, err)
	h.clock.Advance(24*time.Hour - time.Second)

	// The resolver still sees a live link; by the time the recorder consumes
	// it, two seconds have passed.
	recorder := NewResponseRecorder(RecorderDeps{
		Resolver:  h.resolver,
		Responses: h.store,
		Now: func() time.Time {
			return h.clock.Now().Add(2 * time.Second)
		},
	})

	_, err = recorder.SubmitResponse(ctx, SubmitInput{Token: created.Token, Answers: []byte(`{}`)})
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

type listCapture struct {
	*memStore
	filter repository.ResponseFilter
}

func (l *listCapture) List(ctx context.Context, filter repository.ResponseFilter) ([]model.Response, int64, error) {
	l.filter = filter
	return l.memStore.List(ctx, filter)
}

func TestResponseRecorder_ListResponses(t *testing.T) {
	h := newHarness()
	capture := &listCapture{memStore: h.store}
	h.directory.findFn = func(ctx context.Context, ref string) (*model.Client, error) {
		return &model.Client{ID: "0b8f6d7e-1111-4222-8333-444455556666", Code: "C-1"}, nil
	}
	recorder := NewResponseRecorder(RecorderDeps{
		Resolver:  h.resolver,
		Responses: capture,
		Identity:  NewClientIdentityMapper(config.IdentityUUID, h.directory),
		Now:       h.clock.Now,
	})
	ctx := context.Background()

	page, err := recorder.ListResponses(ctx, ListResponsesInput{})
	require.NoError(t, err)
	assert.NotNil(t, page.Responses)
	assert.Equal(t, 20, capture.filter.Limit)

	_, err = recorder.ListResponses(ctx, ListResponsesInput{Limit: 1000, Offset: 5, ClientID: "C-1"})
	require.NoError(t, err)
	assert.Equal(t, 100, capture.filter.Limit)
	assert.Equal(t, 5, capture.filter.Offset)
	assert.Equal(t, "0b8f6d7e-1111-4222-8333-444455556666", capture.filter.ClientID)

	_, err = recorder.ListResponses(ctx, ListResponsesInput{Offset: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestResponseRecorder_ListResponsesNewestFirst(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		created, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
		require.NoError(t, err)
		_, err = h.recorder.SubmitResponse(ctx, SubmitInput{Token: created.Token, Answers: []byte(`{}`)})
		require.NoError(t, err)
		tokens = append(tokens, created.Token)
		h.clock.Advance(time.Minute)
	}

	page, err := h.recorder.ListResponses(ctx, ListResponsesInput{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Responses, 2)
	assert.Equal(t, tokens[2], page.Responses[0].Token)
	assert.Equal(t, tokens[1], page.Responses[1].Token)
}

func TestResponseRecorder_AttachResponseToClient(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	created, err := h.issuer.CreateLink(ctx, CreateLinkInput{})
	require.NoError(t, err)
	result, err := h.recorder.SubmitResponse(ctx, SubmitInput{Token: created.Token, Answers: []byte(`{}`)})
	require.NoError(t, err)

	resp, err := h.recorder.AttachResponseToClient(ctx, result.ResponseID, "c42")
	require.NoError(t, err)
	require.NotNil(t, resp.ClientID)
	assert.Equal(t, "c42", *resp.ClientID)

	_, err = h.recorder.AttachResponseToClient(ctx, "not-a-uuid", "c42")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.recorder.AttachResponseToClient(ctx, result.ResponseID, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.recorder.AttachResponseToClient(ctx, "6f1c2a55-0000-4000-8000-00000000dead", "c42")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
