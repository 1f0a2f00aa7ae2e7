package ports

import "context"

type AuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	// ResolveToken returns the owner id and optional org id for a valid token.
	ResolveToken(ctx context.Context, token string) (int64, *int64, error)
}
