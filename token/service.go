// Package token issues, validates and rotates access/refresh token pairs.
// Access tokens are short-lived stateless JWTs; refresh tokens are long-lived,
// single-use, store-backed opaque strings chained into token families.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-authz-engine/principal"
	"github.com/jrsteele09/go-authz-engine/subjects"
	"github.com/jrsteele09/go-authz-engine/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const refreshTokenLength = 32 // bytes of entropy, hex encoded

// Service issues token pairs, validates access tokens and performs
// refresh-token rotation with replay detection.
type Service struct {
	signer        Signer
	refreshRepo   refresh.Repo
	subjectRepo   subjects.Repo
	issuer        string
	audience      string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	storeTimeout  time.Duration
	nowFunc       func() time.Time
	logger        zerolog.Logger
}

type ServiceOption func(*Service)

// WithTokenExpiry sets the access-token and refresh-token lifetimes.
func WithTokenExpiry(accessExpiry, refreshExpiry time.Duration) ServiceOption {
	return func(s *Service) {
		s.accessExpiry = accessExpiry
		s.refreshExpiry = refreshExpiry
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		s.issuer = issuer
	}
}

func WithAudience(audience string) ServiceOption {
	return func(s *Service) {
		s.audience = audience
	}
}

// WithStoreTimeout bounds every store operation; on expiry of the bound the
// failure surfaces as ErrStorageUnavailable.
func WithStoreTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a token Service backed by the given stores and signer.
func New(refreshRepo refresh.Repo, subjectRepo subjects.Repo, signer Signer, options ...ServiceOption) *Service {
	s := &Service{
		signer:      signer,
		refreshRepo: refreshRepo,
		subjectRepo: subjectRepo,
		logger:      zerolog.Nop(),
	}

	for _, opt := range options {
		opt(s)
	}

	if s.accessExpiry == 0 {
		s.accessExpiry = 5 * time.Minute
	}
	if s.refreshExpiry == 0 {
		s.refreshExpiry = 7 * 24 * time.Hour
	}
	if s.storeTimeout == 0 {
		s.storeTimeout = 5 * time.Second
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s
}

// Issue creates a new token family for the subject and returns a signed access
// token embedding the given claims plus the family's root refresh token.
func (s *Service) Issue(ctx context.Context, subjectID string, claims []principal.Claim) (accessToken, refreshToken string, err error) {
	now := s.nowFunc()

	refreshToken, err = newOpaqueToken()
	if err != nil {
		return "", "", errors.Wrap(err, "Service.Issue token generation")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.refreshRepo.Insert(storeCtx, &refresh.StoredRefreshToken{
		Token:     refreshToken,
		FamilyID:  uuid.New().String(),
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshExpiry),
	}); err != nil {
		return "", "", storageError(err)
	}

	accessToken, err = s.signAccessToken(subjectID, claims)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// ValidateAccess verifies signature, issuer, audience and expiry window of an
// access token and returns the embedded principal. Purely stateless: the store
// is never consulted.
func (s *Service) ValidateAccess(rawToken string) (principal.Principal, error) {
	claims, err := s.parseAccessClaims(rawToken)
	if err != nil {
		return principal.Principal{}, err
	}
	return principalFromClaims(claims)
}

// Refresh redeems a refresh token: exactly one concurrent redemption of a
// given token succeeds and receives a new pair; any other observes the used
// flag, which poisons the whole family. The new access token carries the
// subject's current claims, re-fetched from the subject store.
func (s *Service) Refresh(ctx context.Context, presentedToken string) (accessToken, refreshToken string, err error) {
	now := s.nowFunc()

	successorToken, err := newOpaqueToken()
	if err != nil {
		return "", "", errors.Wrap(err, "Service.Refresh token generation")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	redeemed, err := s.refreshRepo.Rotate(storeCtx, presentedToken, now, &refresh.StoredRefreshToken{
		Token:     successorToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshExpiry), // sliding window
	})
	if err != nil {
		return "", "", s.rotateError(redeemed, err)
	}

	subject, err := s.subjectRepo.GetByID(redeemed.SubjectID)
	if err != nil && !errors.Is(err, subjects.ErrSubjectNotFound) {
		// Transient subject-store fault: surface a retryable error without
		// touching the family.
		return "", "", storageError(err)
	}
	if err != nil || subject.Disabled {
		// The subject record is gone or disabled; the family must not
		// outlive it.
		if revokeErr := s.refreshRepo.RevokeFamily(storeCtx, redeemed.FamilyID); revokeErr != nil {
			s.logger.Error().Err(revokeErr).Str("family_id", redeemed.FamilyID).
				Msg("failed to revoke family for unavailable subject")
		}
		return "", "", ErrTokenInvalid
	}

	accessToken, err = s.signAccessToken(subject.ID, subject.Claims)
	if err != nil {
		return "", "", err
	}
	return accessToken, successorToken, nil
}

// RevokeFamily marks every refresh token of the family revoked. Used for
// logout and incident response. Idempotent.
func (s *Service) RevokeFamily(ctx context.Context, familyID string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.refreshRepo.RevokeFamily(storeCtx, familyID); err != nil {
		return storageError(err)
	}
	s.logger.Info().Str("family_id", familyID).Msg("token family revoked")
	return nil
}

// RevokeToken revokes the family of the presented refresh token. Unknown
// tokens are ignored so the operation stays idempotent and leaks nothing.
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	rt, err := s.refreshRepo.Get(storeCtx, refreshToken)
	if errors.Is(err, refresh.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageError(err)
	}
	return s.RevokeFamily(ctx, rt.FamilyID)
}

func (s *Service) rotateError(redeemed *refresh.StoredRefreshToken, err error) error {
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		return ErrTokenInvalid
	case errors.Is(err, refresh.ErrRevoked):
		return ErrFamilyRevoked
	case errors.Is(err, refresh.ErrUsed):
		// Replay signal: audit-log it distinctly even though the client
		// receives the same generic re-authenticate response.
		event := s.logger.Warn().Str("event", "refresh_token_reuse")
		if redeemed != nil {
			event = event.Str("family_id", redeemed.FamilyID).Str("subject_id", redeemed.SubjectID)
		}
		event.Msg("refresh token reuse detected; family revoked")
		return ErrTokenReuseDetected
	case errors.Is(err, refresh.ErrExpired):
		return ErrTokenExpired
	default:
		return storageError(err)
	}
}

func (s *Service) signAccessToken(subjectID string, claims []principal.Claim) (string, error) {
	now := s.nowFunc()
	p := principal.New(subjectID, claims)

	mapClaims := jwt.MapClaims{
		"iss":    s.issuer,                              // The issuer of the token
		"aud":    s.audience,                            // The audience for which the token is intended
		"sub":    subjectID,                             // The authenticated subject
		"iat":    int64(now.Unix()),                     // Issued At: the time at which the token was issued
		"exp":    int64(now.Add(s.accessExpiry).Unix()), // Expiry: when the token will expire
		"jti":    uuid.New().String(),                   // Unique token ID
		"claims": p.Claims(),                            // Full ordered claim set
		"roles":  p.Roles(),                             // Derived role set for quick inspection
	}

	signed, err := s.signer.Sign(mapClaims)
	if err != nil {
		return "", errors.Wrap(err, "Service.signAccessToken")
	}
	return signed, nil
}

func (s *Service) parseAccessClaims(rawToken string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(rawToken, s.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{s.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(s.nowFunc),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.WithMessage(ErrTokenInvalid, err.Error())
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func principalFromClaims(claims jwt.MapClaims) (principal.Principal, error) {
	subjectID, _ := claims["sub"].(string)

	claimList := make([]principal.Claim, 0)
	if rawClaims, ok := claims["claims"].([]any); ok {
		for _, rawClaim := range rawClaims {
			entry, ok := rawClaim.(map[string]any)
			if !ok {
				return principal.Principal{}, ErrTokenInvalid
			}
			claimType, _ := entry["type"].(string)
			claimValue, _ := entry["value"].(string)
			claimList = append(claimList, principal.Claim{Type: claimType, Value: claimValue})
		}
	}

	return principal.New(subjectID, claimList), nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return context.WithCancel(ctx)
}

func newOpaqueToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}

func storageError(err error) error {
	return errors.WithMessage(ErrStorageUnavailable, err.Error())
}
