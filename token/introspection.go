package token

import (
	"strings"

	"github.com/jrsteele09/go-authz-engine/internal/utils"
)

// Introspection represents the metadata of an access token. The Active field
// indicates the state of the token - if it's false, other fields may not be
// populated.
type Introspection struct {
	Active bool     `json:"active"`          // True or false - is the token valid
	Iss    *string  `json:"iss,omitempty"`   // Issuer of the token
	Sub    *string  `json:"sub,omitempty"`   // Subject's unique ID
	Aud    *string  `json:"aud,omitempty"`   // Intended audience
	Iat    *int64   `json:"iat,omitempty"`   // Issued at time
	Exp    *int64   `json:"exp,omitempty"`   // Expiration
	Jti    *string  `json:"jti,omitempty"`   // Unique token ID
	Roles  []string `json:"roles,omitempty"` // Roles carried by the subject
}

// Introspect reports whether an access token is currently valid along with its
// metadata. Invalid or expired tokens simply come back inactive.
func (s *Service) Introspect(rawToken string) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &Introspection{Active: false}, nil
	}

	claims, err := s.parseAccessClaims(rawToken)
	if err != nil {
		return &Introspection{Active: false}, err
	}

	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	jti, _ := claims["jti"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	var roles []string
	if rawRoles, ok := claims["roles"].([]any); ok {
		roles = utils.ToStringSlice(rawRoles)
	}

	return &Introspection{
		Active: true,
		Iss:    utils.Ptr(iss),
		Sub:    utils.Ptr(sub),
		Aud:    utils.Ptr(aud),
		Iat:    utils.Ptr(int64(iat)),
		Exp:    utils.Ptr(int64(exp)),
		Jti:    utils.Ptr(jti),
		Roles:  roles,
	}, nil
}
