package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditAction string

const (
	AuditUserUpdate        AuditAction = "USER_UPDATE"
	AuditUserDelete        AuditAction = "USER_DELETE"
	AuditLoanCreateForUser AuditAction = "LOAN_CREATE_FOR_USER"
	AuditLoanUpdate        AuditAction = "LOAN_UPDATE"
	AuditLoanDelete        AuditAction = "LOAN_DELETE"
	AuditImpersonate       AuditAction = "IMPERSONATE"
	AuditNotificationsRun  AuditAction = "NOTIFICATIONS_RUN"
)

// AuditLog is an append-only record of an administrative action
type AuditLog struct {
	ID         primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	ActorID    string                 `json:"actor_id" bson:"actor_id"`
	ActorEmail string                 `json:"actor_email" bson:"actor_email"`
	Action     AuditAction            `json:"action" bson:"action"`
	TargetType string                 `json:"target_type" bson:"target_type"`
	TargetID   string                 `json:"target_id" bson:"target_id"`
	Details    map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	IP         string                 `json:"ip" bson:"ip"`
	UserAgent  string                 `json:"user_agent" bson:"user_agent"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
}

type AuditFilter struct {
	ActorID    string
	Action     AuditAction
	TargetType string
	TargetID   string
	Page       Page
}
