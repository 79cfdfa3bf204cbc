// Package workflow holds the signature queue state machine. Every function
// mutates only the item it is given and performs no I/O.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"qualtrack/internal/domain/entity"
)

var (
	// ErrInvalidTransition is returned for transitions out of the terminal state
	// or when there is no current role to act on.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrDuplicateRole is returned when the required sequence repeats a role
	ErrDuplicateRole = errors.New("duplicate role")
	// ErrNoRequiredRoles is returned when an item is created without roles
	ErrNoRequiredRoles = errors.New("at least one required role is needed")
)

// NewItemParams describes a queue item at creation time
type NewItemParams struct {
	ID             string
	DocumentID     string
	PersonnelID    string
	DocumentPath   string
	FormType       entity.FormType
	RequiredRoles  []entity.Role
	CompletedRoles []entity.Role
}

// NewQueueItem validates the role sets and builds an item whose current role
// and status follow from the pre-seeded completed roles.
func NewQueueItem(p NewItemParams, now time.Time) (*entity.SignatureQueueItem, error) {
	if len(p.RequiredRoles) == 0 {
		return nil, ErrNoRequiredRoles
	}

	seen := make(map[entity.Role]struct{}, len(p.RequiredRoles))
	for _, r := range p.RequiredRoles {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %q", entity.ErrUnknownRole, r)
		}
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRole, r)
		}
		seen[r] = struct{}{}
	}

	item := &entity.SignatureQueueItem{
		ID:            p.ID,
		DocumentID:    p.DocumentID,
		PersonnelID:   p.PersonnelID,
		DocumentPath:  p.DocumentPath,
		FormType:      p.FormType,
		RequiredRoles: append([]entity.Role(nil), p.RequiredRoles...),
		Status:        entity.QueueStatusPending,
		LastAction:    "Created",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, r := range p.CompletedRoles {
		if _, ok := seen[r]; !ok {
			return nil, fmt.Errorf("%w: completed role %q is not required", entity.ErrUnknownRole, r)
		}
		if !item.HasCompleted(r) {
			item.CompletedRoles = append(item.CompletedRoles, r)
		}
	}

	resolve(item)
	return item, nil
}

// NextOutstandingRole returns the first required role that has not signed yet
func NextOutstandingRole(item *entity.SignatureQueueItem) (entity.Role, bool) {
	for _, r := range item.RequiredRoles {
		if !item.HasCompleted(r) {
			return r, true
		}
	}
	return "", false
}

// IsComplete reports whether every required role has signed
func IsComplete(item *entity.SignatureQueueItem) bool {
	_, outstanding := NextOutstandingRole(item)
	return !outstanding
}

// AdvanceAfterSignature records that role signed and moves the item to the
// next outstanding role, or to Completed when none remain. Recording a role
// twice changes nothing but UpdatedAt.
func AdvanceAfterSignature(item *entity.SignatureQueueItem, role entity.Role, now time.Time) error {
	if !item.Requires(role) {
		return fmt.Errorf("%w: %q is not required for item %s", entity.ErrUnknownRole, role, item.ID)
	}

	if !item.HasCompleted(role) {
		item.CompletedRoles = append(item.CompletedRoles, role)
	}

	resolve(item)
	item.UpdatedAt = now
	return nil
}

// ReturnToQueue marks the item Returned. When returnRole is set it becomes the
// current role without touching CompletedRoles, so the document can go back
// to an earlier signer for correction.
func ReturnToQueue(item *entity.SignatureQueueItem, returnRole entity.Role, now time.Time) error {
	if item.Status == entity.QueueStatusCompleted {
		return fmt.Errorf("%w: item %s is completed", ErrInvalidTransition, item.ID)
	}
	if returnRole != "" {
		if !item.Requires(returnRole) {
			return fmt.Errorf("%w: %q is not required for item %s", entity.ErrUnknownRole, returnRole, item.ID)
		}
		item.CurrentRole = returnRole
	}

	item.Status = entity.QueueStatusReturned
	item.UpdatedAt = now
	return nil
}

// GetPreviousRole returns the most recently completed required role, or ""
// when nothing has been completed.
func GetPreviousRole(item *entity.SignatureQueueItem) entity.Role {
	for i := len(item.CompletedRoles) - 1; i >= 0; i-- {
		if item.Requires(item.CompletedRoles[i]) {
			return item.CompletedRoles[i]
		}
	}
	return ""
}

func resolve(item *entity.SignatureQueueItem) {
	if next, ok := NextOutstandingRole(item); ok {
		item.CurrentRole = next
		item.Status = entity.QueueStatusPending
		return
	}
	item.CurrentRole = ""
	item.Status = entity.QueueStatusCompleted
}
