package entity

import "time"

// SignatureFailure classifies why a signature request did not succeed
type SignatureFailure string

const (
	FailureNone                   SignatureFailure = ""
	FailureNoCredentialAvailable  SignatureFailure = "NoCredentialAvailable"
	FailureSelectionCancelled     SignatureFailure = "SelectionCancelled"
	FailureInputNotFound          SignatureFailure = "InputNotFound"
	FailureSigningOperationFailed SignatureFailure = "SigningOperationFailed"
	FailureInvalidTransition      SignatureFailure = "InvalidTransition"
)

// SignatureRequest asks a provider to sign one field of one document
type SignatureRequest struct {
	DocumentPath        string `json:"document_path"`
	Purpose             string `json:"purpose"`
	SignerDisplayName   string `json:"signer_display_name"`
	SignatureFieldName  string `json:"signature_field_name,omitempty"`
	PageNumber          int    `json:"page_number,omitempty"`
	OutputPath          string `json:"output_path,omitempty"`
	PreferredThumbprint string `json:"preferred_thumbprint,omitempty"`
}

// SignatureResult is what a provider reports back; it never carries a Go error
type SignatureResult struct {
	Success            bool             `json:"success"`
	Failure            SignatureFailure `json:"failure,omitempty"`
	Message            string           `json:"message"`
	SignedAt           time.Time        `json:"signed_at"`
	SignedDocumentPath string           `json:"signed_document_path,omitempty"`
	SignerThumbprint   string           `json:"signer_thumbprint,omitempty"`
}

// NewFailedResult builds a failed result
func NewFailedResult(failure SignatureFailure, message string) *SignatureResult {
	return &SignatureResult{
		Success: false,
		Failure: failure,
		Message: message,
	}
}

// ProviderStatus reports provider identity and current availability
type ProviderStatus struct {
	ProviderName string `json:"provider_name"`
	IsAvailable  bool   `json:"is_available"`
}

// EmbeddedSignature describes a signature found inside a signed document
type EmbeddedSignature struct {
	FieldName         string    `json:"field_name"`
	SignerName        string    `json:"signer_name"`
	SignerSubject     string    `json:"signer_subject"`
	SignerThumbprint  string    `json:"signer_thumbprint"`
	Reason            string    `json:"reason"`
	SigningTime       time.Time `json:"signing_time"`
	CoversWholeFile   bool      `json:"covers_whole_file"`
	Valid             bool      `json:"valid"`
	ValidationMessage string    `json:"validation_message,omitempty"`
}
