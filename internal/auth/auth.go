package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/onronder/ContentLabTech-sub011/internal/config"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	JWTAuthentication  string = "jwt"
	NoneAuthentication string = "none"
)

func NewAuthenticator(authConfig *config.AuthConfig) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.Type)

	switch authConfig.Type {
	case JWTAuthentication:
		return NewJWTAuthenticator(authConfig.JwkCertURL)
	default:
		return NewNoneAuthenticator(), nil
	}
}
