package domain

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vonote/vonote/internal/ports"
)

type authService struct {
	pool   *pgxpool.Pool
	secret string
}

func NewAuthService(pool *pgxpool.Pool, secret string) ports.AuthService {
	return &authService{
		pool:   pool,
		secret: secret,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	var (
		id       int64
		realPass string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, password FROM users WHERE email = $1`,
		email,
	).Scan(&id, &realPass)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errors.New("invalid credentials")
		}
		return "", err
	}

	if password != realPass {
		return "", errors.New("invalid credentials")
	}

	return fmt.Sprintf("%d.%s", id, s.sign(strconv.FormatInt(id, 10))), nil
}

func (s *authService) ResolveToken(ctx context.Context, token string) (int64, *int64, error) {
	idStr, sig, ok := strings.Cut(token, ".")
	if !ok {
		return 0, nil, errors.New("malformed token")
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, nil, errors.New("malformed token")
	}

	if !hmac.Equal([]byte(sig), []byte(s.sign(idStr))) {
		return 0, nil, errors.New("invalid token")
	}

	var orgID *int64
	err = s.pool.QueryRow(ctx,
		`SELECT org_id FROM users WHERE id = $1`,
		id,
	).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, errors.New("unknown user")
		}
		return 0, nil, err
	}

	return id, orgID, nil
}

func (s *authService) sign(msg string) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil))
}
