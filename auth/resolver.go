package auth

import (
	"fmt"
	"rendezvous/domain"
	"rendezvous/errors"
)

// TrustResolver accepts the user id the client claims. It is meant for
// deployments where an upstream proxy already authenticated the user.
type TrustResolver struct{}

func (TrustResolver) Resolve(cmd domain.Authenticate) (domain.UserID, error) {
	if cmd.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing user id", errors.ErrUnauthenticated)
	}
	return cmd.UserID, nil
}

// TokenResolver requires a valid session token. A user id sent next to the
// token must match the token's subject.
type TokenResolver struct {
	tokens *Tokens
}

func NewTokenResolver(tokens *Tokens) TokenResolver {
	return TokenResolver{tokens: tokens}
}

func (r TokenResolver) Resolve(cmd domain.Authenticate) (domain.UserID, error) {
	if cmd.Token == "" {
		return 0, fmt.Errorf("%w: missing token", errors.ErrUnauthenticated)
	}
	userID, err := r.tokens.Validate(cmd.Token)
	if err != nil {
		return 0, err
	}
	if cmd.UserID != 0 && cmd.UserID != userID {
		return 0, fmt.Errorf("%w: token belongs to another user", errors.ErrUnauthenticated)
	}
	return userID, nil
}
