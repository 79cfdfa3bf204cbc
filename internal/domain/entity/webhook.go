package entity

import "time"

// QueueEventType names a queue transition that is announced to subscribers
type QueueEventType string

const (
	QueueEventCompleted QueueEventType = "queue_item.completed"
	QueueEventReturned  QueueEventType = "queue_item.returned"
)

// QueueEvent is the webhook body sent for a queue transition
type QueueEvent struct {
	Event      QueueEventType `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       QueueEventData `json:"data"`
}

// QueueEventData is a snapshot of the item after the transition
type QueueEventData struct {
	ItemID         string      `json:"item_id"`
	DocumentID     string      `json:"document_id,omitempty"`
	PersonnelID    string      `json:"personnel_id,omitempty"`
	FormType       FormType    `json:"form_type"`
	Status         QueueStatus `json:"status"`
	CurrentRole    Role        `json:"current_role,omitempty"`
	CompletedRoles []Role      `json:"completed_roles"`
	DocumentPath   string      `json:"document_path"`
	LastAction     string      `json:"last_action"`
}

// NewQueueEvent snapshots item for event
func NewQueueEvent(event QueueEventType, item *SignatureQueueItem, at time.Time) *QueueEvent {
	return &QueueEvent{
		Event:      event,
		OccurredAt: at,
		Data: QueueEventData{
			ItemID:         item.ID,
			DocumentID:     item.DocumentID,
			PersonnelID:    item.PersonnelID,
			FormType:       item.FormType,
			Status:         item.Status,
			CurrentRole:    item.CurrentRole,
			CompletedRoles: append([]Role{}, item.CompletedRoles...),
			DocumentPath:   item.DocumentPath,
			LastAction:     item.LastAction,
		},
	}
}
