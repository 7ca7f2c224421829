package auth_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onronder/ContentLabTech-sub011/internal/auth"
)

var _ = Describe("jwt authentication", func() {
	Context("token validation", func() {
		It("successfully validates the token", func() {
			sToken, keyFn := generateToken("user-1", "team-1", time.Hour)
			authenticator := auth.NewJWTAuthenticatorWithKeyFn(keyFn)

			user, err := authenticator.Authenticate(sToken)
			Expect(err).To(BeNil())
			Expect(user.ID).To(Equal("user-1"))
			Expect(user.TeamID).To(Equal("team-1"))
		})

		It("accepts a token without team", func() {
			sToken, keyFn := generateToken("user-1", "", time.Hour)
			user, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticate(sToken)
			Expect(err).To(BeNil())
			Expect(user.TeamID).To(BeEmpty())
		})

		It("fails without subject", func() {
			sToken, keyFn := generateToken("", "team-1", time.Hour)
			_, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("fails when the token expired", func() {
			sToken, keyFn := generateToken("user-1", "team-1", -time.Hour)
			_, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("fails with the wrong signing method", func() {
			sToken, keyFn := generateTokenWrongSigningMethod()
			_, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("middleware", func() {
		var seen auth.User

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = auth.UserFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		BeforeEach(func() {
			seen = auth.User{}
		})

		It("puts the user in the request context", func() {
			sToken, keyFn := generateToken("user-1", "team-1", time.Hour)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil)
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sToken))

			auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticator(handler).ServeHTTP(rr, req)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(seen.ID).To(Equal("user-1"))
		})

		It("rejects a request without token", func() {
			_, keyFn := generateToken("user-1", "team-1", time.Hour)
			rr := httptest.NewRecorder()
			auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticator(handler).
				ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil))
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		})

		It("serves the health probe without token", func() {
			_, keyFn := generateToken("user-1", "team-1", time.Hour)
			rr := httptest.NewRecorder()
			auth.NewJWTAuthenticatorWithKeyFn(keyFn).Authenticator(handler).
				ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("passes everything through with none authentication", func() {
			rr := httptest.NewRecorder()
			auth.NewNoneAuthenticator().Authenticator(handler).
				ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(seen.ID).To(BeEmpty())
		})
	})
})

func generateToken(subject, team string, ttl time.Duration) (string, func(t *jwt.Token) (any, error)) {
	claims := jwt.MapClaims{
		"iat": jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"exp": jwt.NewNumericDate(time.Now().Add(ttl)),
		"iss": "test",
	}
	if subject != "" {
		claims["sub"] = subject
	}
	if team != "" {
		claims["team_id"] = team
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())

	ss, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}

func generateTokenWrongSigningMethod() (string, func(t *jwt.Token) (any, error)) {
	claims := jwt.MapClaims{
		"sub": "user-1",
		"iat": jwt.NewNumericDate(time.Now()),
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).To(BeNil())

	ss, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}
