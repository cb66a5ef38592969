package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeDueSoon NotificationType = "DUE_SOON"
	NotificationTypeOverdue NotificationType = "OVERDUE"
)

type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "IN_APP"
	ChannelEmail NotificationChannel = "EMAIL"
)

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "PENDING"
	EmailStatusSending EmailStatus = "SENDING"
	EmailStatusSent    EmailStatus = "SENT"
	EmailStatusFailed  EmailStatus = "FAILED"
)

// Notification is a due/overdue reminder for one loan on one channel.
// ReadAt applies to IN_APP only; EmailStatus, EmailError and SentAt to EMAIL only.
type Notification struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	UserID      uuid.UUID           `json:"user_id" db:"user_id"`
	LoanID      *uuid.UUID          `json:"loan_id,omitempty" db:"loan_id"`
	Type        NotificationType    `json:"type" db:"type"`
	Channel     NotificationChannel `json:"channel" db:"channel"`
	Title       string              `json:"title" db:"title"`
	Message     string              `json:"message" db:"message"`
	ReadAt      *time.Time          `json:"read_at,omitempty" db:"read_at"`
	EmailStatus *EmailStatus        `json:"email_status,omitempty" db:"email_status"`
	EmailError  *string             `json:"email_error,omitempty" db:"email_error"`
	SentAt      *time.Time          `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// NotificationKey is the idempotency key: at most one notification per key
type NotificationKey struct {
	LoanID  uuid.UUID
	Type    NotificationType
	Channel NotificationChannel
}

// EnsureOutcome tags the result of making sure a notification exists
type EnsureOutcome int

const (
	OutcomeCreated EnsureOutcome = iota
	OutcomeAlreadyExists
	OutcomeFailed
)

func (o EnsureOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyExists:
		return "already_exists"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

type EnsureResult struct {
	Key          NotificationKey
	Outcome      EnsureOutcome
	Notification *Notification
	Err          error
}

// RunReport summarises one notification generator pass
type RunReport struct {
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Today          time.Time      `json:"today"`
	LoansScanned   int            `json:"loans_scanned"`
	Created        int            `json:"created"`
	AlreadyExisted int            `json:"already_existed"`
	Failed         int            `json:"failed"`
	Results        []EnsureResult `json:"-"`
}

func (r *RunReport) Add(res EnsureResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeAlreadyExists:
		r.AlreadyExisted++
	case OutcomeFailed:
		r.Failed++
	}
}

// DispatchReport summarises one email dispatcher pass
type DispatchReport struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
