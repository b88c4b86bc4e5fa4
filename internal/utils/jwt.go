package utils // package utils provides helpers for tokens, check-in codes and QR images

import (
    "errors" // rejects unusable token parameters
    "time"   // token lifetimes

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Issuer is written into the iss claim of tokens minted here.
const Issuer = "event-ticketing"

// AccessToken is a signed HS256 JWT and the moment it stops being valid.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// NewAccessToken signs a token carrying the claims JWTAuth reads: sub
// (numeric user id), role, exp and iat.  Buyer tokens are normally issued
// by the identity service; the server mints one at startup in dev and the
// tests use it to authenticate requests.  A negative ttl yields an already
// expired token.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
    if secret == "" || userID == 0 {
        return AccessToken{}, errors.New("access token needs a secret and a user id")
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "iss":  Issuer,
        "sub":  userID,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
