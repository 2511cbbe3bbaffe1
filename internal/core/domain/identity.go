package domain

import (
	"encoding/base64"
	"strings"
)

const (
	DefaultAdminDomain = "admin.shopify.com"
	DefaultShopSuffix  = ".myshopify.com"
)

// Identity is the (shop, host) pair of one merchant session. Empty means unresolved.
type Identity struct {
	Shop string
	Host string
}

func (i Identity) Complete() bool {
	return i.Shop != "" && i.Host != ""
}

func (i Identity) Empty() bool {
	return i.Shop == "" && i.Host == ""
}

// ShopHandle strips the platform suffix from a shop domain.
func ShopHandle(shop, suffix string) string {
	if suffix == "" {
		suffix = DefaultShopSuffix
	}
	return strings.Replace(shop, suffix, "", 1)
}

// SynthesizeHost derives the host token for a shop that arrived without one.
// The result only depends on its inputs.
func SynthesizeHost(adminDomain, shop string) string {
	if adminDomain == "" {
		adminDomain = DefaultAdminDomain
	}
	raw := adminDomain + "/store/" + ShopHandle(shop, DefaultShopSuffix)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeHost returns the admin location a host token points at.
func DecodeHost(host string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(host); err == nil && len(b) > 0 {
			return string(b), true
		}
	}
	return "", false
}

// NormalizeShop turns manual input into a shop domain: "acme" -> "acme.myshopify.com".
func NormalizeShop(raw string) string {
	shop := strings.ToLower(strings.TrimSpace(raw))
	if shop == "" {
		return ""
	}
	if !strings.Contains(shop, ".") {
		shop += DefaultShopSuffix
	}
	return shop
}

// Source records where a resolved identity field came from.
type Source string

const (
	SourceNone        Source = ""
	SourceQuery       Source = "query"
	SourceHash        Source = "hash"
	SourceStorage     Source = "storage"
	SourceSynthesized Source = "synthesized"
)

// Resolution is an immutable resolved identity plus its provenance.
type Resolution struct {
	Identity
	ShopSource Source
	HostSource Source
}

// HostMissing reports whether no channel carried a host and it was synthesized.
func (r Resolution) HostMissing() bool {
	return r.HostSource == SourceSynthesized || r.HostSource == SourceNone
}
