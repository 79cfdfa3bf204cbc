package entity

import "time"

// QueueStatus is the workflow state of a signature queue item
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "Pending"
	QueueStatusReturned  QueueStatus = "Returned"
	QueueStatusCompleted QueueStatus = "Completed"
)

// Valid reports whether s is a known status
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusReturned, QueueStatusCompleted:
		return true
	}
	return false
}

// SignatureQueueItem is one document awaiting one or more role signatures
type SignatureQueueItem struct {
	ID             string      `json:"id"`
	DocumentID     string      `json:"document_id,omitempty"`
	PersonnelID    string      `json:"personnel_id,omitempty"`
	DocumentPath   string      `json:"document_path"`
	FormType       FormType    `json:"form_type"`
	RequiredRoles  []Role      `json:"required_roles"`
	CompletedRoles []Role      `json:"completed_roles"` // insertion order is kept
	CurrentRole    Role        `json:"current_role"`
	Status         QueueStatus `json:"status"`
	LastAction     string      `json:"last_action"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasCompleted reports whether role already signed
func (i *SignatureQueueItem) HasCompleted(role Role) bool {
	for _, r := range i.CompletedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Requires reports whether role is part of the required sequence
func (i *SignatureQueueItem) Requires(role Role) bool {
	for _, r := range i.RequiredRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so transitions can be staged before persisting
func (i *SignatureQueueItem) Clone() *SignatureQueueItem {
	c := *i
	c.RequiredRoles = append([]Role(nil), i.RequiredRoles...)
	c.CompletedRoles = append([]Role(nil), i.CompletedRoles...)
	return &c
}

// CreateQueueItemRequest is the input for creating a queue item
type CreateQueueItemRequest struct {
	DocumentID     string   `json:"document_id"`
	PersonnelID    string   `json:"personnel_id"`
	DocumentPath   string   `json:"document_path" validate:"required"`
	FormType       string   `json:"form_type" validate:"required"`
	RequiredRoles  []string `json:"required_roles" validate:"required,min=1,unique,dive,required"`
	CompletedRoles []string `json:"completed_roles" validate:"omitempty,unique"`
}

// SignRequest is the input for signing the current role of a queue item
type SignRequest struct {
	SignerDisplayName     string `json:"signer_display_name" validate:"required"`
	CertificateThumbprint string `json:"certificate_thumbprint"`
}

// ReturnRequest is the input for sending a queue item back for rework
type ReturnRequest struct {
	Role string `json:"role"`
	Note string `json:"note"`
}

// InboxFilter narrows an inbox query
type InboxFilter struct {
	Role     Role
	Status   QueueStatus
	FormType FormType
}
