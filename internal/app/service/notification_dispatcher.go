package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sifan077/PowerForm/internal/app/model"
	metrics "github.com/sifan077/PowerForm/internal/infra/prometheus"
	"github.com/sifan077/PowerForm/internal/infra/retry"
	"go.uber.org/zap"
)

// Mailer delivers a single message. Implementations live in infra/mailer.
type Mailer interface {
	Send(ctx context.Context, msg model.MailMessage) error
}

// Notifier schedules post-submission notifications.
type Notifier interface {
	Notify(input NotifyInput)
}

// NotifyInput describes a recorded submission.
type NotifyInput struct {
	ResponseID    string
	Questionnaire *model.Questionnaire
	Answers       json.RawMessage
	ClientName    string
	ClientEmail   string
}

// DispatcherDeps groups dependencies required by the notification dispatcher.
type DispatcherDeps struct {
	Logger        *zap.Logger
	Mailer        Mailer
	From          string
	StudioAddress string
	Subject       string
	// Retry bounds every individual send.
	Retry retry.Policy
}

// Dispatcher sends notifications in the background. Failures are logged and
// never reach the submitter.
type Dispatcher struct {
	logger        *zap.Logger
	mailer        Mailer
	from          string
	studioAddress string
	subject       string
	policy        retry.Policy
	wg            sync.WaitGroup
}

// NewDispatcher returns a Dispatcher. Without a retry policy it uses one try plus
// two retries with a one second linear backoff and a ten second attempt timeout.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Default(time.Second)
		policy.AttemptTimeout = 10 * time.Second
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error) {
			metrics.OutboundRetries.Inc()
			logger.Debug("retrying mail send", zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return &Dispatcher{
		logger:        logger,
		mailer:        deps.Mailer,
		from:          deps.From,
		studioAddress: deps.StudioAddress,
		subject:       deps.Subject,
		policy:        policy,
	}
}

// Notify composes and sends the studio notification and, when the respondent
// left an address, a confirmation. It returns immediately.
func (d *Dispatcher) Notify(input NotifyInput) {
	if d.mailer == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification dispatch panicked",
					zap.String("response_id", input.ResponseID),
					zap.Any("panic", r),
				)
			}
		}()
		d.dispatch(context.Background(), input)
	}()
}

// Wait blocks until every scheduled dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, input NotifyInput) {
	studio := d.studioAddress
	if input.Questionnaire != nil && input.Questionnaire.NotifyEmail != "" {
		studio = input.Questionnaire.NotifyEmail
	}
	if studio == "" {
		metrics.Notifications.WithLabelValues(string(model.MailStudioNotification), metrics.OutcomeSkipped).Inc()
		d.logger.Warn("no studio address configured, skipping notification",
			zap.String("response_id", input.ResponseID))
	} else {
		d.send(ctx, input.ResponseID, d.studioMessage(studio, input))
	}

	if input.ClientEmail != "" {
		d.send(ctx, input.ResponseID, d.confirmationMessage(input))
	}
}

func (d *Dispatcher) send(ctx context.Context, responseID string, msg model.MailMessage) {
	err := d.policy.Do(ctx, func(ctx context.Context) error {
		return d.mailer.Send(ctx, msg)
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(string(msg.Kind), metrics.OutcomeError).Inc()
		d.logger.Error("notification failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("response_id", responseID),
			zap.Error(err),
		)
		return
	}
	metrics.Notifications.WithLabelValues(string(msg.Kind), metrics.OutcomeOK).Inc()
}

func (d *Dispatcher) studioMessage(to string, input NotifyInput) model.MailMessage {
	title := questionnaireTitle(input.Questionnaire)
	subject := d.subject
	if subject == "" {
		subject = "New response: " + title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A new response to %q was submitted.\n\n", title)
	if input.ClientName != "" {
		fmt.Fprintf(&b, "Name: %s\n", input.ClientName)
	}
	if input.ClientEmail != "" {
		fmt.Fprintf(&b, "Email: %s\n", input.ClientEmail)
	}
	b.WriteString("\n")
	b.WriteString(formatAnswers(input.Questionnaire, input.Answers))

	return model.MailMessage{
		Kind:    model.MailStudioNotification,
		From:    d.from,
		To:      to,
		ReplyTo: input.ClientEmail,
		Subject: subject,
		Body:    b.String(),
	}
}

func (d *Dispatcher) confirmationMessage(input NotifyInput) model.MailMessage {
	title := questionnaireTitle(input.Questionnaire)

	var b strings.Builder
	if input.ClientName != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", input.ClientName)
	} else {
		b.WriteString("Hi,\n\n")
	}
	fmt.Fprintf(&b, "Thanks for completing %q. We received the following answers:\n\n", title)
	b.WriteString(formatAnswers(input.Questionnaire, input.Answers))

	return model.MailMessage{
		Kind:    model.MailClientConfirmation,
		From:    d.from,
		To:      input.ClientEmail,
		Subject: "We received your answers",
		Body:    b.String(),
	}
}

func questionnaireTitle(q *model.Questionnaire) string {
	if q == nil || q.Title == "" {
		return "Questionnaire"
	}
	return q.Title
}

// formatAnswers lists answers in field order, then any keys the questionnaire
// does not declare, sorted.
func formatAnswers(q *model.Questionnaire, raw json.RawMessage) string {
	var answers map[string]json.RawMessage
	if err := json.Unmarshal(raw, &answers); err != nil || len(answers) == 0 {
		return "(no answers)\n"
	}

	var b strings.Builder
	if q != nil {
		for _, field := range q.Fields {
			value, ok := answers[field.Key]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", firstNonEmpty(field.Label, field.Key), answerText(value))
			delete(answers, field.Key)
		}
	}

	extra := make([]string, 0, len(answers))
	for key := range answers {
		extra = append(extra, key)
	}
	sort.Strings(extra)
	for _, key := range extra {
		fmt.Fprintf(&b, "%s: %s\n", key, answerText(answers[key]))
	}
	return b.String()
}

func answerText(value json.RawMessage) string {
	value = bytes.TrimSpace(value)
	if bytes.Equal(value, []byte("null")) {
		return "-"
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var list []interface{}
	if err := json.Unmarshal(value, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	}
	return string(value)
}
