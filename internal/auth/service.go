package auth

import (
	"context"
	"errors"
	"time"

	"backend-touchgrass/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

var (
	signTokenFn       = (*Service).signToken
	parseWithClaimsFn = jwt.ParseWithClaims
)

var errNoStore = errors.New("wallet store unavailable")

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

// Connect records the wallet and issues a token pair for it.
func (s *Service) Connect(ctx context.Context, req TokenRequest) (Wallet, TokenResponse, error) {
	address, err := NormalizeAddress(req.Address)
	if err != nil {
		return Wallet{}, TokenResponse{}, err
	}

	if s.db == nil {
		return Wallet{}, TokenResponse{}, errNoStore
	}
	wallet := Wallet{Address: address, ShortAddress: ShortAddress(address)}
	row := s.db.QueryRow(ctx, `
		INSERT INTO wallets (address)
		VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET last_seen_at = now()
		RETURNING created_at, last_seen_at
	`, address)
	if err := row.Scan(&wallet.CreatedAt, &wallet.LastSeenAt); err != nil {
		return Wallet{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, address)
	if err != nil {
		return Wallet{}, TokenResponse{}, err
	}
	return wallet, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, address string) (TokenResponse, error) {
	access, err := signTokenFn(s, address, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, address, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, address, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	address, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || address != claims.Address || time.Now().After(expiresAt) {
		return "", errors.New("refresh token invalid")
	}
	return claims.Address, nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Address, nil
}

func (s *Service) signToken(address string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   address,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Address == "" {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, address string, ttl time.Duration) error {
	if s.db == nil {
		return errNoStore
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, address, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), address, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	if s.db == nil {
		return "", time.Time{}, errNoStore
	}
	row := s.db.QueryRow(ctx, `
		SELECT address, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var address string
	var expiresAt time.Time
	if err := row.Scan(&address, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return address, expiresAt, nil
}
