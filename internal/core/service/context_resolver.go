package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/port"
)

const (
	shopStorageKey = "sp_shop"
	hostStorageKey = "sp_host"
)

var ErrIdentityMissing = errors.New("identity missing")

// ContextResolver is the only reader of identity keys in tab storage.
type ContextResolver struct {
	storage     port.SessionStorage
	adminDomain string
	logger      *zap.Logger
}

func NewContextResolver(storage port.SessionStorage, adminDomain string, logger *zap.Logger) *ContextResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextResolver{
		storage:     storage,
		adminDomain: adminDomain,
		logger:      logger.Named("resolver"),
	}
}

// Resolve looks up shop and host in the query, then the hash query, then tab
// storage. A missing host is synthesized from the shop. Resolved fields are
// written back so a poorer URL later still resolves. Storage failures are
// logged and the field treated as absent; resolution itself never fails.
func (r *ContextResolver) Resolve(ctx context.Context, window port.Window) domain.Resolution {
	loc := window.Location()

	shop, shopSrc := r.param(ctx, loc, "shop", shopStorageKey)
	host, hostSrc := r.param(ctx, loc, "host", hostStorageKey)

	if host == "" && shop != "" {
		host = domain.SynthesizeHost(r.adminDomain, shop)
		hostSrc = domain.SourceSynthesized
		r.logger.Debug("synthesized host", zap.String("shop", shop), zap.String("host", host))
	}

	r.persist(ctx, shopStorageKey, shop)
	r.persist(ctx, hostStorageKey, host)

	return domain.Resolution{
		Identity:   domain.Identity{Shop: shop, Host: host},
		ShopSource: shopSrc,
		HostSource: hostSrc,
	}
}

func (r *ContextResolver) param(ctx context.Context, loc *url.URL, name, storageKey string) (string, domain.Source) {
	if loc != nil {
		if v := loc.Query().Get(name); v != "" {
			return v, domain.SourceQuery
		}
		if v := HashQuery(loc).Get(name); v != "" {
			return v, domain.SourceHash
		}
	}

	v, ok, err := r.storage.Get(ctx, storageKey)
	if err != nil {
		r.logger.Warn("tab storage read failed", zap.String("key", storageKey), zap.Error(err))
		return "", domain.SourceNone
	}
	if !ok || v == "" {
		return "", domain.SourceNone
	}
	return v, domain.SourceStorage
}

func (r *ContextResolver) persist(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if err := r.storage.Set(ctx, key, value); err != nil {
		r.logger.Warn("tab storage write failed", zap.String("key", key), zap.Error(err))
	}
}

// HashQuery parses the query embedded in a fragment such as "#/dashboard?shop=x".
func HashQuery(loc *url.URL) url.Values {
	frag := loc.EscapedFragment()
	idx := strings.Index(frag, "?")
	if idx == -1 {
		return url.Values{}
	}
	values, err := url.ParseQuery(frag[idx+1:])
	if err != nil {
		return url.Values{}
	}
	return values
}

// RepairHash returns href with shop and host injected into the hash query when
// the hash carries a shop without a host, or neither. ok is false when nothing changed.
func RepairHash(loc *url.URL, id domain.Identity) (string, bool) {
	if !id.Complete() {
		return "", false
	}

	frag := loc.EscapedFragment()
	if frag == "" {
		frag = "/"
	}
	path, query := frag, ""
	if idx := strings.Index(frag, "?"); idx != -1 {
		path, query = frag[:idx], frag[idx+1:]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	hasShop, hasHost := values.Get("shop") != "", values.Get("host") != ""

	switch {
	case hasShop && !hasHost:
		values.Set("host", id.Host)
	case !hasShop && !hasHost:
		values.Set("shop", id.Shop)
		values.Set("host", id.Host)
	default:
		return "", false
	}

	out := *loc
	out.Fragment = ""
	out.RawFragment = ""
	return out.String() + "#" + path + "?" + values.Encode(), true
}
