package middleware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/contextx"
	"github.com/godamri/helix-audit/crypto"
	"github.com/godamri/helix-audit/server/middleware"
)

func payloadWithHeaders(headers map[string]string) middleware.AuthPayload {
	return middleware.AuthPayload{
		Headers:    headers,
		RemoteAddr: "10.0.0.5:39123",
		Method:     "GET",
		Path:       "/v1/events/crud",
	}
}

func TestAPIKeyStrategyAcceptsValidKey(t *testing.T) {
	hasher := crypto.NewHasher(crypto.HashConfig{Cost: 4})
	hash, err := hasher.HashSecret("s3cret")
	require.NoError(t, err)

	strategy, err := middleware.NewAPIKeyStrategy([]middleware.APIKey{
		{ID: "svc-reporting", Name: "Reporting Service", Hash: hash},
	}, nil)
	require.NoError(t, err)

	ctx, err := strategy.Authenticate(context.Background(), payloadWithHeaders(map[string]string{
		middleware.APIKeyHeader: "svc-reporting.s3cret",
	}))
	require.NoError(t, err)
	assert.Equal(t, "apikey:svc-reporting", contextx.GetActorID(ctx))
	assert.Equal(t, "Reporting Service", contextx.GetActorName(ctx))
}

func TestAPIKeyStrategyRejections(t *testing.T) {
	hasher := crypto.NewHasher(crypto.HashConfig{Cost: 4})
	hash, err := hasher.HashSecret("s3cret")
	require.NoError(t, err)

	strategy, err := middleware.NewAPIKeyStrategy([]middleware.APIKey{
		{ID: "svc-reporting", Hash: hash},
	}, nil)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"no separator":   "svc-reporting",
		"unknown id":     "svc-other.s3cret",
		"wrong secret":   "svc-reporting.nope",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			headers := map[string]string{}
			if header != "" {
				headers[middleware.APIKeyHeader] = header
			}
			_, err := strategy.Authenticate(context.Background(), payloadWithHeaders(headers))
			assert.Error(t, err)
		})
	}
}

func TestNewAPIKeyStrategyValidatesKeySet(t *testing.T) {
	_, err := middleware.NewAPIKeyStrategy(nil, nil)
	require.Error(t, err)

	_, err = middleware.NewAPIKeyStrategy([]middleware.APIKey{{ID: "x"}}, nil)
	require.Error(t, err, "hash is mandatory")
}

type stubVerifier struct {
	claims *crypto.Claims
	err    error
}

func (s *stubVerifier) VerifyToken(string) (*crypto.Claims, error) {
	return s.claims, s.err
}

func TestJWTStrategyHydratesActor(t *testing.T) {
	verifier := &stubVerifier{claims: &crypto.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-77"},
		Name:             "Nadia",
	}}
	strategy := middleware.NewJWTStrategy(verifier, nil)

	ctx, err := strategy.Authenticate(context.Background(), payloadWithHeaders(map[string]string{
		"Authorization": "Bearer sometoken",
	}))
	require.NoError(t, err)
	assert.Equal(t, "u-77", contextx.GetActorID(ctx))
	assert.Equal(t, "Nadia", contextx.GetActorName(ctx))
}

func TestJWTStrategyRejections(t *testing.T) {
	strategy := middleware.NewJWTStrategy(&stubVerifier{err: errors.New("expired")}, nil)

	_, err := strategy.Authenticate(context.Background(), payloadWithHeaders(nil))
	assert.Error(t, err, "missing header")

	_, err = strategy.Authenticate(context.Background(), payloadWithHeaders(map[string]string{
		"Authorization": "Basic dXNlcjpwYXNz",
	}))
	assert.Error(t, err, "not a bearer token")

	_, err = strategy.Authenticate(context.Background(), payloadWithHeaders(map[string]string{
		"Authorization": "Bearer bad",
	}))
	assert.Error(t, err, "verifier says no")

	// A valid signature with no subject is still unusable.
	empty := middleware.NewJWTStrategy(&stubVerifier{claims: &crypto.Claims{}}, nil)
	_, err = empty.Authenticate(context.Background(), payloadWithHeaders(map[string]string{
		"Authorization": "Bearer sometoken",
	}))
	assert.Error(t, err)
}

func TestTrustedHeaderStrategyChecksSourceCIDR(t *testing.T) {
	strategy, err := middleware.NewTrustedHeaderStrategy(middleware.TrustedHeaderConfig{
		TrustedProxies: []string{"10.0.0.0/8"},
	}, nil)
	require.NoError(t, err)

	payload := payloadWithHeaders(map[string]string{
		"X-Helix-User-Id":   "u-5",
		"X-Helix-User-Name": "gateway-user",
	})

	ctx, err := strategy.Authenticate(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "u-5", contextx.GetActorID(ctx))
	assert.Equal(t, "gateway-user", contextx.GetActorName(ctx))

	// Same headers from outside the trusted range are spoofing.
	payload.RemoteAddr = "203.0.113.9:1234"
	_, err = strategy.Authenticate(context.Background(), payload)
	assert.Error(t, err)
}

func TestTrustedHeaderStrategyRequiresIdentityHeader(t *testing.T) {
	strategy, err := middleware.NewTrustedHeaderStrategy(middleware.TrustedHeaderConfig{
		TrustedProxies: []string{"10.0.0.5"},
	}, nil)
	require.NoError(t, err, "single IP works as /32")

	_, err = strategy.Authenticate(context.Background(), payloadWithHeaders(nil))
	assert.Error(t, err)
}

func TestNewTrustedHeaderStrategyConfigErrors(t *testing.T) {
	_, err := middleware.NewTrustedHeaderStrategy(middleware.TrustedHeaderConfig{}, nil)
	require.Error(t, err, "empty proxy list would trust the world")

	_, err = middleware.NewTrustedHeaderStrategy(middleware.TrustedHeaderConfig{
		TrustedProxies: []string{"not-a-cidr"},
	}, nil)
	require.Error(t, err)
}
