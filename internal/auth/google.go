package auth

import (
	"context"

	"google.golang.org/api/idtoken"
)

// GoogleVerifier accepts Google ID tokens minted for one of the client IDs
type GoogleVerifier struct {
	clientIDs []string
	validate  func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientIDs []string) *GoogleVerifier {
	return &GoogleVerifier{
		clientIDs: clientIDs,
		validate:  idtoken.Validate,
	}
}

// Verify tries each configured client ID as the audience
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	var payload *idtoken.Payload
	for _, clientID := range v.clientIDs {
		p, err := v.validate(ctx, idToken, clientID)
		if err == nil {
			payload = p
			break
		}
	}
	if payload == nil {
		return nil, ErrInvalidToken
	}

	sub, ok := payload.Claims["sub"].(string)
	if !ok || sub == "" {
		sub = payload.Subject
	}
	if sub == "" {
		return nil, ErrInvalidToken
	}

	id := &Identity{UserID: sub}
	id.Email, _ = payload.Claims["email"].(string)
	id.Name, _ = payload.Claims["name"].(string)
	id.Picture, _ = payload.Claims["picture"].(string)
	return id, nil
}

// IsConfigured returns true if at least one client ID is set
func (v *GoogleVerifier) IsConfigured() bool {
	return len(v.clientIDs) > 0 && v.clientIDs[0] != ""
}
