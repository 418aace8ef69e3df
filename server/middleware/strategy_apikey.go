package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/godamri/helix-audit/contextx"
	"github.com/godamri/helix-audit/crypto"
)

const APIKeyHeader = "X-API-Key"

// APIKey is one provisioned credential. Only the bcrypt hash of the
// secret is ever configured; the live secret exists client-side only.
type APIKey struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// APIKeyStrategy authenticates machine clients presenting
// "X-API-Key: <id>.<secret>" against the provisioned key set.
type APIKeyStrategy struct {
	keys   map[string]APIKey
	logger *slog.Logger
}

func NewAPIKeyStrategy(keys []APIKey, logger *slog.Logger) (*APIKeyStrategy, error) {
	if len(keys) == 0 {
		return nil, errors.New("api key strategy: key set cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	index := make(map[string]APIKey, len(keys))
	for _, k := range keys {
		if k.ID == "" || k.Hash == "" {
			return nil, errors.New("api key strategy: key needs both id and hash")
		}
		index[k.ID] = k
	}

	return &APIKeyStrategy{
		keys:   index,
		logger: logger,
	}, nil
}

func (s *APIKeyStrategy) Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error) {
	raw := payload.GetHeader(APIKeyHeader)
	if raw == "" {
		return nil, errors.New("missing api key header")
	}

	id, secret, found := strings.Cut(raw, ".")
	if !found || id == "" || secret == "" {
		return nil, errors.New("malformed api key")
	}

	key, ok := s.keys[id]
	if !ok {
		// bcrypt compare against a throwaway hash would hide the miss
		// timing, but key ids are not secrets here.
		s.logger.WarnContext(ctx, "API key rejected: unknown key id", "key_id", id, "ip", payload.RemoteAddr)
		return nil, errors.New("unknown api key")
	}

	if !crypto.CheckSecret(key.Hash, secret) {
		s.logger.WarnContext(ctx, "API key rejected: secret mismatch", "key_id", id, "ip", payload.RemoteAddr)
		return nil, errors.New("invalid api key")
	}

	name := key.Name
	if name == "" {
		name = id
	}

	return contextx.WithActor(ctx, "apikey:"+id, name), nil
}
