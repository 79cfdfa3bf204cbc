package entity

// OutcomeKind distinguishes the results of one orchestration step
type OutcomeKind string

const (
	// OutcomeNoChange means signing failed and the queue item was left untouched
	OutcomeNoChange OutcomeKind = "NoChange"
	// OutcomeRejected means there was nothing to sign
	OutcomeRejected OutcomeKind = "Rejected"
	// OutcomeSignedPending means a role signed and more roles remain
	OutcomeSignedPending OutcomeKind = "SignedPending"
	// OutcomeCompleted means the last role signed and the document was relocated
	OutcomeCompleted OutcomeKind = "Completed"
)

// SignOutcome is the result of SignCurrent
type SignOutcome struct {
	Kind       OutcomeKind         `json:"kind"`
	SignedRole Role                `json:"signed_role,omitempty"`
	Failure    SignatureFailure    `json:"failure,omitempty"`
	Message    string              `json:"message"`
	Item       *SignatureQueueItem `json:"item"`
	Signature  *SignatureResult    `json:"signature,omitempty"`
}

// Done reports whether the step changed the queue item
func (o *SignOutcome) Done() bool {
	return o.Kind == OutcomeSignedPending || o.Kind == OutcomeCompleted
}
