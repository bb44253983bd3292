package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned by Inspect for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("opaque token")

// Claims is what `auth whoami` can tell about a JWT without verifying it.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt *time.Time
	Raw       jwt.MapClaims
}

// Inspect decodes a JWT payload locally. The signature is NOT checked.
func Inspect(token string) (*Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrOpaqueToken
	}
	c := &Claims{Raw: mc}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.ExpiresAt = &t
	}
	return c, nil
}
