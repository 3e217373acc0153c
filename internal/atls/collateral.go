package atls

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	dcap "github.com/Phala-Network/dcap-qvl/golang-bindings"
	lru "github.com/hashicorp/golang-lru"

	"github.com/aspect-build/jingui/internal/logx"
)

// collateralEntry is an immutable snapshot of fetched DCAP collateral.
// It is never mutated after construction; refresh replaces the cache
// entry wholesale rather than editing fields in place, so concurrent
// readers never observe a torn/partial bundle (spec §4.4, §5, §9).
type collateralEntry struct {
	collateral *dcap.QuoteCollateralV3
	nextUpdate time.Time
}

// CollateralCache is the read-mostly, lock-guarded store described in
// spec §3/§5: collateral fetched from PCCS may be shared read-only
// across concurrent verifications when a policy enables caching. Keys
// are (fmspc, qe_identity_hash, pck_ca) per spec §4.4.
//
// Backed by hashicorp/golang-lru, whose Cache is internally
// mutex-guarded: every Get/Add is serialized, so no caller ever
// observes a partially-constructed collateralEntry — the correctness
// property spec §5 requires — even though the underlying
// implementation is not literally lock-free.
type CollateralCache struct {
	lru *lru.Cache
}

// NewCollateralCache creates a cache holding up to size entries.
func NewCollateralCache(size int) (*CollateralCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("atls: create collateral cache: %w", err)
	}
	return &CollateralCache{lru: c}, nil
}

// collateralCacheKey computes the (fmspc, qe_identity_hash, pck_ca)
// key for a raw quote, deriving qe_identity_hash as SHA-256 of the
// quote's QE vendor ID + QE ID so distinct QE identities never
// collide.
func collateralCacheKey(q *dcap.Quote) string {
	qe := sha256.Sum256(append(append([]byte{}, q.Header.QEVendorID...), q.QEID...))
	return q.FMSPC + "|" + hex.EncodeToString(qe[:]) + "|" + q.CA
}

// getOrFetch returns cached collateral for q if present and not
// stale, otherwise fetches fresh collateral via verifier, stores it,
// and returns it. Staleness is detected from the cached entry's
// next_update field (spec §4.4).
func (c *CollateralCache) getOrFetch(ctx context.Context, verifier QuoteVerifier, pccsURL string, raw []byte, q *dcap.Quote, now time.Time) (*dcap.QuoteCollateralV3, error) {
	key := collateralCacheKey(q)
	if v, ok := c.lru.Get(key); ok {
		entry := v.(*collateralEntry)
		if now.Before(entry.nextUpdate) {
			logx.Debugf("atls.collateral.cache hit fmspc=%s", q.FMSPC)
			return entry.collateral, nil
		}
		logx.Debugf("atls.collateral.cache stale fmspc=%s next_update=%s", q.FMSPC, entry.nextUpdate)
	}

	collateral, err := verifier.FetchCollateral(ctx, pccsURL, raw)
	if err != nil {
		return nil, &CollateralFetchError{PCCSURL: pccsURL, Err: err}
	}

	nextUpdate := parseTCBInfoNextUpdate(collateral.TCBInfo)
	c.lru.Add(key, &collateralEntry{collateral: collateral, nextUpdate: nextUpdate})
	return collateral, nil
}

// fetchNoCache always fetches fresh collateral, bypassing the cache.
func fetchNoCache(ctx context.Context, verifier QuoteVerifier, pccsURL string, raw []byte) (*dcap.QuoteCollateralV3, error) {
	collateral, err := verifier.FetchCollateral(ctx, pccsURL, raw)
	if err != nil {
		return nil, &CollateralFetchError{PCCSURL: pccsURL, Err: err}
	}
	return collateral, nil
}
