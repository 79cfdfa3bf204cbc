package entity

import "time"

// Document is a document-registry record kept in sync with the queue item's file
type Document struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
	PersonnelID string    `json:"personnel_id,omitempty"`
	FormType    FormType  `json:"form_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
