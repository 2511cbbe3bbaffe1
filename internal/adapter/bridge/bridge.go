package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
)

const DefaultTokenTTL = time.Minute

// Credentials identify the app to the host platform.
type Credentials struct {
	Key      string
	Secret   string
	TokenTTL time.Duration
}

// Claims mirror the platform's session token payload.
type Claims struct {
	jwt.RegisteredClaims
	Dest      string `json:"dest"`
	SessionID string `json:"sid"`
}

// Handle is the page's client object for the host platform.
type Handle struct {
	CredentialKey         string
	Host                  string
	Shop                  string
	ForceTopLevelRedirect bool

	secret    []byte
	ttl       time.Duration
	sessionID string
	now       func() time.Time
}

// SessionToken mints a short-lived credential for one outbound call.
func (h *Handle) SessionToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := h.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    "https://" + h.Shop + "/admin",
			Subject:   h.sessionID,
			Audience:  jwt.ClaimStrings{h.CredentialKey},
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Dest:      "https://" + h.Shop,
		SessionID: h.sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// AdminURL is where a forced redirect relocates a detached tab.
func (h *Handle) AdminURL() string {
	base, ok := domain.DecodeHost(h.Host)
	if !ok {
		base = domain.DefaultAdminDomain + "/store/" + domain.ShopHandle(h.Shop, "")
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return base + "/apps/" + url.PathEscape(h.CredentialKey)
}

// Provider builds the handle at most once per page load. Identity, not frame
// state, gates construction.
type Provider struct {
	creds    Credentials
	identity domain.Identity
	logger   *zap.Logger
	now      func() time.Time

	once   sync.Once
	handle *Handle
}

func NewProvider(creds Credentials, identity domain.Identity, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		creds:    creds,
		identity: identity,
		logger:   logger.Named("bridge"),
		now:      time.Now,
	}
}

// Get returns the memoized handle, or nil when shop/host or credentials are missing.
func (p *Provider) Get() *Handle {
	p.once.Do(func() {
		if !p.identity.Complete() {
			p.logger.Warn("bridge disabled, identity incomplete",
				zap.String("shop", p.identity.Shop),
				zap.String("host", p.identity.Host),
			)
			return
		}
		if p.creds.Key == "" || p.creds.Secret == "" {
			p.logger.Error("bridge disabled, credentials not configured")
			return
		}

		ttl := p.creds.TokenTTL
		if ttl <= 0 {
			ttl = DefaultTokenTTL
		}
		p.handle = &Handle{
			CredentialKey:         p.creds.Key,
			Host:                  p.identity.Host,
			Shop:                  p.identity.Shop,
			ForceTopLevelRedirect: true,
			secret:                []byte(p.creds.Secret),
			ttl:                   ttl,
			sessionID:             uuid.NewString(),
			now:                   p.now,
		}
		p.logger.Info("bridge initialized", zap.String("shop", p.identity.Shop), zap.String("host", p.identity.Host))
	})
	return p.handle
}
