package config

import "time"

type TokenConfig interface {
	GetIssuer() string
	GetAudience() string
	GetSigningSecret() string
	GetSigningKeyFile() string
	GetSigningKeyID() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type Token struct{}

var _ TokenConfig = Token{}

func (Token) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", "http://localhost:8080")
}

func (Token) GetAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "go-authz-engine")
}

// GetSigningSecret returns the HMAC secret for access token signatures.
// A fixed development secret is used when the environment variable is unset;
// production deployments must set TOKEN_SIGNING_SECRET.
func (Token) GetSigningSecret() string {
	return GetEnv("TOKEN_SIGNING_SECRET", "dev-only-insecure-secret")
}

// GetSigningKeyFile returns the path to a PEM-encoded RSA private key. When
// set, access tokens are signed with RS256 instead of the HMAC secret.
func (Token) GetSigningKeyFile() string {
	return GetEnv("TOKEN_SIGNING_KEY_FILE", "")
}

func (Token) GetSigningKeyID() string {
	return GetEnv("TOKEN_SIGNING_KEY_ID", "primary")
}

func (Token) GetAccessTokenExpiry() time.Duration {
	return durationEnv("ACCESS_TOKEN_EXPIRY", 5*time.Minute)
}

func (Token) GetRefreshTokenExpiry() time.Duration {
	return durationEnv("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
