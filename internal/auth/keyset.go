package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"tonight-api/internal/metrics"
	"tonight-api/internal/telemetry"
)

// KeySet is the provider's kid -> PEM certificate document, parsed and
// cached for ttl. A ttl of zero downloads the document on every lookup.
type KeySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewKeySet(url string, ttl time.Duration, client *http.Client, logger zerolog.Logger) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &KeySet{
		url:    url,
		ttl:    ttl,
		client: client,
		log:    logger.With().Str("component", "keyset").Logger(),
		now:    time.Now,
	}
}

// Key returns the public key for kid. A miss against a fresh cache forces a
// single refresh before giving up with ErrUnknownKey.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, fresh := k.cached(kid); key != nil {
		return key, nil
	} else if fresh {
		k.log.Debug().Str("kid", kid).Msg("kid not cached, refreshing")
	}

	keys, err := k.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
}

func (k *KeySet) cached(kid string) (key *rsa.PublicKey, fresh bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.ttl <= 0 || k.keys == nil || k.now().Sub(k.fetchedAt) >= k.ttl {
		return nil, false
	}
	return k.keys[kid], true
}

// refresh collapses concurrent downloads into one. The shared download
// outlives the caller that started it; the client timeout bounds it.
func (k *KeySet) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	v, err, _ := k.group.Do("keys", func() (any, error) {
		keys, err := k.fetch(context.WithoutCancel(ctx))
		if err != nil {
			metrics.KeySetFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.KeySetFetches.WithLabelValues("ok").Inc()

		k.mu.Lock()
		k.keys = keys
		k.fetchedAt = k.now()
		k.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*rsa.PublicKey), nil
}

func (k *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ctx, span := telemetry.Tracer("tonight-api/auth").Start(ctx, "keyset.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("keyset.url", k.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrKeyFetch, resp.StatusCode)
	}

	var doc map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrKeyFetch, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc))
	for kid, pemText := range doc {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
		if err != nil {
			k.log.Warn().Err(err).Str("kid", kid).Msg("skipping unparsable key")
			continue
		}
		keys[kid] = key
	}
	span.SetAttributes(attribute.Int("keyset.size", len(keys)))
	k.log.Debug().Int("keys", len(keys)).Msg("key set refreshed")
	return keys, nil
}
