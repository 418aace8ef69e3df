package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type HashConfig struct {
	Cost int `envconfig:"BCRYPT_COST" default:"12" yaml:"cost"`
}

type Hasher struct {
	cost int
}

func NewHasher(cfg HashConfig) *Hasher {
	cost := cfg.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &Hasher{cost: cost}
}

// HashSecret produces the bcrypt hash stored for an API key. The live
// key never touches persistent config.
func (h *Hasher) HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("crypto: secret cannot be empty")
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("crypto: failed to hash secret: %w", err)
	}
	return string(bytes), nil
}

func CheckSecret(hash, secret string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}
