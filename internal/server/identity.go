package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	directorytypes "github.com/vaultline/vaultline/modules/directory/domain/types"
	operationservices "github.com/vaultline/vaultline/modules/operation/services"
)

// Principal is the authenticated caller: the organization it belongs to and
// that organization's directory type. Tokens are issued by the external
// identity provider; this service only verifies them.
type Principal struct {
	Subject string
	OrgID   string
	OrgType directorytypes.OrgType
}

func (p Principal) Actor() operationservices.Actor {
	return operationservices.Actor{OrgID: p.OrgID, OrgType: p.OrgType}
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

var (
	errTokenMissing = errors.New("bearer token missing")
	errTokenInvalid = errors.New("bearer token invalid")
)

type identityClaims struct {
	OrgID   string `json:"org_id"`
	OrgType string `json:"org_type"`
	jwt.RegisteredClaims
}

type tokenVerifier interface {
	Verify(r *http.Request) (Principal, error)
}

type jwtVerifier struct {
	secret []byte
}

func newJWTVerifierFromEnv() (tokenVerifier, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SIGNING_KEY"))
	if secret == "" {
		return nil, errors.New("server: JWT_SIGNING_KEY is not set")
	}
	return &jwtVerifier{secret: []byte(secret)}, nil
}

func (v *jwtVerifier) Verify(r *http.Request) (Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Principal{}, errTokenMissing
	}

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errTokenInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Principal{}, errTokenInvalid
	}

	orgType := directorytypes.OrgType(strings.ToUpper(strings.TrimSpace(claims.OrgType)))
	if strings.TrimSpace(claims.OrgID) == "" || !orgType.Valid() {
		return Principal{}, errTokenInvalid
	}
	return Principal{
		Subject: claims.Subject,
		OrgID:   claims.OrgID,
		OrgType: orgType,
	}, nil
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
