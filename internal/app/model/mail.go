package model

// MailKind distinguishes the notifications sent after a submission.
type MailKind string

const (
	MailStudioNotification MailKind = "studio_notification"
	MailClientConfirmation MailKind = "client_confirmation"
)

// MailMessage is the payload handed to a mail transport.
type MailMessage struct {
	Kind    MailKind `json:"kind"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

const (
	MailStreamName     = "MAIL"
	MailStreamSubject  = "mail.outbound"
	MailStreamMaxBytes = 1024 * 1024 * 50 // 50MB
)
