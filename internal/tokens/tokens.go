package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/skorenev/marketplace/internal/models"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	issuer = "marketplace-auth"
)

// Claims carries user identity plus a typ discriminator so a refresh token
// can never be presented where an access token is expected.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs access and refresh tokens with separate secrets: a leaked
// access secret cannot mint refresh tokens and vice versa.
type Codec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewCodec(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Codec{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}
}

func (c *Codec) IssueAccess(user *models.User) (string, time.Time, error) {
	exp := time.Now().Add(c.AccessTTL)
	claims := Claims{
		Email:     user.Email,
		Role:      string(user.Role),
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, exp, nil
}

// IssueRefresh also returns the JTI; it is stored alongside the token digest
// for disambiguation in audit trails, not as a security boundary.
func (c *Codec) IssueRefresh(user *models.User) (string, time.Time, string, error) {
	jti := uuid.NewString()
	exp := time.Now().Add(c.RefreshTTL)
	claims := Claims{
		Email:     user.Email,
		Role:      string(user.Role),
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.RefreshSecret)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return raw, exp, jti, nil
}

func (c *Codec) ParseAccess(raw string) (*Claims, error) {
	return parse(raw, c.AccessSecret, TypeAccess)
}

func (c *Codec) ParseRefresh(raw string) (*Claims, error) {
	return parse(raw, c.RefreshSecret, TypeRefresh)
}

func parse(raw string, secret []byte, wantType string) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != wantType {
		return nil, errors.New("unexpected token type")
	}
	return &claims, nil
}
