package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/godamri/helix-audit/contextx"
)

// TrustedHeaderStrategy trusts identity headers stamped by an upstream
// gateway, but only when the connection comes from a trusted CIDR.
type TrustedHeaderStrategy struct {
	trustedCIDRs []*net.IPNet
	logger       *slog.Logger

	// Header Config
	headerUserID   string
	headerUserName string
}

// Config untuk Strategy ini
type TrustedHeaderConfig struct {
	TrustedProxies []string // e.g. ["127.0.0.1/32", "10.0.0.0/8"]
	HeaderUserID   string   // default: X-Helix-User-ID
	HeaderUserName string   // default: X-Helix-User-Name
}

func NewTrustedHeaderStrategy(cfg TrustedHeaderConfig, logger *slog.Logger) (*TrustedHeaderStrategy, error) {
	if len(cfg.TrustedProxies) == 0 {
		return nil, errors.New("security_risk: trusted_proxies list cannot be empty in gateway mode")
	}

	cidrs := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, cidr := range cfg.TrustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			// Fallback: Try parsing single IP as /32
			if ip := net.ParseIP(cidr); ip != nil {
				_, ipNet, _ = net.ParseCIDR(cidr + "/32")
			} else {
				return nil, fmt.Errorf("invalid cidr configuration: %s", cidr)
			}
		}
		cidrs = append(cidrs, ipNet)
	}

	// Defaults
	if cfg.HeaderUserID == "" {
		cfg.HeaderUserID = "X-Helix-User-ID"
	}
	if cfg.HeaderUserName == "" {
		cfg.HeaderUserName = "X-Helix-User-Name"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TrustedHeaderStrategy{
		trustedCIDRs: cidrs,
		logger:       logger,

		headerUserID:   cfg.HeaderUserID,
		headerUserName: cfg.HeaderUserName,
	}, nil
}

func (s *TrustedHeaderStrategy) Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error) {
	// SECURITY: IP Validation (The Gatekeeper)
	// Raw RemoteAddr (e.g., "10.1.2.3:45678")
	host, _, err := net.SplitHostPort(payload.RemoteAddr)
	if err != nil {
		s.logger.Warn("Auth rejected: failed to parse remote addr", "addr", payload.RemoteAddr)
		return nil, errors.New("unauthorized gateway connection")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, errors.New("invalid remote ip")
	}

	isTrusted := false
	for _, cidr := range s.trustedCIDRs {
		if cidr.Contains(ip) {
			isTrusted = true
			break
		}
	}

	if !isTrusted {
		// CRITICAL AUDIT LOG
		s.logger.WarnContext(ctx, "SECURITY ALERT: Untrusted IP attempted to spoof Gateway",
			"ip", host,
			"path", payload.Path,
		)
		return nil, errors.New("forbidden: untrusted source")
	}

	// DATA INTEGRITY: Header Extraction
	userID := payload.GetHeader(s.headerUserID)
	if userID == "" {
		return nil, errors.New("missing identity header")
	}

	userName := strings.TrimSpace(payload.GetHeader(s.headerUserName))

	return contextx.WithActor(ctx, userID, userName), nil
}
