package mailer

import (
	"context"
	"net/http"
	"testing"

	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/infra/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

const relayURL = "https://relay.example.com"

var testMessage = model.MailMessage{
	Kind:    model.MailClientConfirmation,
	From:    "studio@example.com",
	To:      "jane@x.com",
	Subject: "Thanks",
	Body:    "We received your answers.",
}

func TestWebhook_Send(t *testing.T) {
	defer gock.Off()

	gock.New(relayURL).
		Post("/send").
		MatchHeader("Authorization", "Bearer relay-token").
		MatchType("json").
		JSON(testMessage).
		Reply(http.StatusAccepted)

	m := NewWebhook(&http.Client{}, relayURL+"/send", "relay-token")
	require.NoError(t, m.Send(context.Background(), testMessage))
	assert.True(t, gock.IsDone())
}

func TestWebhook_Send_ServerErrorIsRetryable(t *testing.T) {
	defer gock.Off()

	gock.New(relayURL).Post("/send").Times(2).Reply(http.StatusBadGateway)
	gock.New(relayURL).Post("/send").Reply(http.StatusOK)

	m := NewWebhook(&http.Client{}, relayURL+"/send", "")
	err := retry.Policy{MaxAttempts: 3}.Do(context.Background(), func(ctx context.Context) error {
		return m.Send(ctx, testMessage)
	})

	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestWebhook_Send_RejectionIsPermanent(t *testing.T) {
	defer gock.Off()

	gock.New(relayURL).Post("/send").Reply(http.StatusUnprocessableEntity)

	m := NewWebhook(&http.Client{}, relayURL+"/send", "")
	calls := 0
	err := retry.Policy{MaxAttempts: 3}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return m.Send(ctx, testMessage)
	})

	assert.ErrorContains(t, err, "rejected message with 422")
	assert.Equal(t, 1, calls)
}
