package jwk

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

// HTTPClient abstracts the HTTP client used for fetching remote JWKS
// documents. This allows callers to provide custom HTTP clients with
// specific timeouts, transport settings, or middleware (e.g., for mTLS
// or proxy configuration).
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxJWKSResponseSize caps JWKS response bodies at 1 MB to prevent
// resource exhaustion from a misbehaving endpoint.
const maxJWKSResponseSize = 1 << 20

// DefaultFetchTimeout bounds a single JWKS fetch when the caller's
// context carries no deadline. A slow key endpoint must fail the realm
// attempt rather than hang the whole chain.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher is a [Source] that retrieves key material from a remote JWKS
// endpoint, caching the parsed set for a configurable TTL. When a
// requested key ID is absent from the cached set, the set is refetched
// once to pick up key rotation before reporting the key as missing.
//
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	url    string
	client HTTPClient
	ttl    time.Duration

	mu        sync.Mutex
	cached    *KeySet
	fetchedAt time.Time
}

// Compile-time assertion that Fetcher implements Source.
var _ Source = (*Fetcher)(nil)

// NewFetcher creates a Fetcher for the given JWKS URL. If client is nil,
// a default [http.Client] with a 10-second timeout is used. A
// non-positive ttl disables caching (every lookup refetches).
func NewFetcher(url string, client HTTPClient, ttl time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Fetcher{
		url:    url,
		client: client,
		ttl:    ttl,
	}
}

// VerificationKey resolves a key from the remote JWKS, fetching or
// refreshing the cached set as needed. The context bounds the fetch;
// cancellation or timeout surfaces as an UNAVAIL_xxx error so the realm
// reports the key as unavailable rather than hanging.
func (f *Fetcher) VerificationKey(ctx context.Context, kid string, family Family) (any, error) {
	set, err := f.currentSet(ctx, false)
	if err != nil {
		return nil, err
	}

	key, err := set.VerificationKey(kid, family)
	if err == nil {
		return key, nil
	}
	if !raerr.HasCode(err, raerr.CodeNotFoundKey) {
		return nil, err
	}

	// Kid not in the cached set: may be a key rotation. Refetch once.
	set, fetchErr := f.currentSet(ctx, true)
	if fetchErr != nil {
		return nil, fetchErr
	}
	return set.VerificationKey(kid, family)
}

// currentSet returns the cached key set, fetching from the remote
// endpoint when the cache is empty, stale, or force is set.
func (f *Fetcher) currentSet(ctx context.Context, force bool) (*KeySet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh := f.cached != nil && f.ttl > 0 && time.Since(f.fetchedAt) < f.ttl
	if fresh && !force {
		return f.cached, nil
	}

	set, err := f.fetch(ctx)
	if err != nil {
		// Serve the stale set if one exists; a transient endpoint outage
		// should not reject tokens signed with already-known keys.
		if f.cached != nil {
			return f.cached, nil
		}
		return nil, err
	}

	f.cached = set
	f.fetchedAt = time.Now()
	return set, nil
}

// fetch performs a single HTTP GET against the JWKS endpoint and parses
// the response.
func (f *Fetcher) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, raerr.Wrap(err, raerr.CodeInternal, "jwk: failed to create JWKS request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, raerr.Wrapf(err, raerr.CodeUnavailableDependency,
			"jwk: JWKS fetch from %s failed", f.url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, raerr.Newf(raerr.CodeUnavailableDependency,
			"jwk: JWKS endpoint %s returned status %d", f.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, raerr.Wrap(err, raerr.CodeUnavailableDependency, "jwk: failed to read JWKS response")
	}

	return ParseKeySet(body)
}
