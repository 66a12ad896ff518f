package registration

import (
	"context"
	"time"
)

// Credential is the check-in artifact the backend issues once the visitor
// is registered. ImageURL is shown and offered for download as-is.
type Credential struct {
	ID       string    `json:"id"`
	ImageURL string    `json:"imageUrl"`
	IssuedAt time.Time `json:"issuedAt"`
}

// CredentialIssuer creates the participant record on the backend.
//
// reference is the verified challenge reference. Transport failures must
// wrap challenge.ErrNetwork so the session can retry them; application
// rejections wrap challenge.ErrServer.
type CredentialIssuer interface {
	IssueCredential(ctx context.Context, draft ParticipantDraft, reference string) (*Credential, error)
}
