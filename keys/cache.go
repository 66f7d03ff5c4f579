package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fedsig/go/http/signing"
	"github.com/fedsig/go/logging"
	"github.com/fedsig/go/telemetry"
)

var (
	logger = logging.New("keys")
	tracer = telemetry.Tracer("httpsig", "keys")

	// internal error indicating a hard cache miss
	errCacheMiss = errors.New("key not in cache")

	releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`)
)

// Cache is a KeyResolver that keeps public keys from an upstream resolver in
// Redis. Entries younger than fresh are served directly. Entries older than
// fresh but younger than stale are served while one caller refreshes them in
// the background. Unknown keyIds can be cached too, see WithNegativeCaching.
//
// HMAC secrets are never written to Redis.
type Cache struct {
	name     string
	client   redis.Cmdable
	upstream signing.KeyResolver
	opts     cacheOptions
}

type CacheOption interface {
	apply(*cacheOptions)
}

type cacheOptions struct {
	fresh    time.Duration
	stale    time.Duration
	negative time.Duration
}

type cacheOptionFunc func(*cacheOptions)

func (fn cacheOptionFunc) apply(opts *cacheOptions) {
	fn(opts)
}

// WithNegativeCaching remembers that a keyId is unknown for d. Federated
// servers see many signatures from actors that have since been deleted, and
// this stops each of them reaching the upstream resolver.
func WithNegativeCaching(d time.Duration) CacheOption {
	return cacheOptionFunc(func(opts *cacheOptions) {
		opts.negative = d
	})
}

func NewCache(client redis.Cmdable, name string, upstream signing.KeyResolver, fresh, stale time.Duration, options ...CacheOption) *Cache {
	c := Cache{
		name:     name,
		client:   client,
		upstream: upstream,
	}
	c.opts.fresh = fresh
	c.opts.stale = stale

	for _, o := range options {
		o.apply(&c.opts)
	}

	return &c
}

// Prepare loads the Lua script used to release refresh locks.
func (c *Cache) Prepare(ctx context.Context) error {
	return releaseScript.Load(ctx, c.client).Err()
}

// ResolveKey returns the key for keyID from Redis, falling back to the upstream
// resolver on a miss or when Redis cannot be reached.
func (c *Cache) ResolveKey(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	log := logger.With(logging.GetFields(ctx)...)

	key, err := c.fetch(ctx, keyID)
	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, signing.ErrUnknownKey):
		return nil, err
	case errors.Is(err, errCacheMiss):
		ctx, span := tracer.Start(
			ctx,
			"keys.cache.miss",
			trace.WithAttributes(c.spanAttributes(keyID)...),
			trace.WithAttributes(attribute.String("cache.miss", "hard")),
		)
		defer span.End()
		return c.fill(ctx, keyID)
	default:
		log.Warn("key cache fetch failed: falling back to upstream", zap.String("key_id", keyID), zap.Error(err))
		return c.upstream.ResolveKey(ctx, keyID)
	}
}

// Forget removes any cached entry for keyID, positive or negative. Call it
// when an actor announces a key rotation.
func (c *Cache) Forget(ctx context.Context, keyID string) error {
	k := c.keysFor(keyID)
	return c.client.Del(ctx, k.data, k.fresh, k.negative).Err()
}

func (c *Cache) fetch(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	k := c.keysFor(keyID)

	result, err := c.client.MGet(ctx, k.fresh, k.data, k.negative).Result()
	if err != nil {
		return nil, err
	}
	if len(result) != 3 {
		return nil, fmt.Errorf("incorrect number of values from redis: got %d, expected 3", len(result))
	}
	fresh, data, negative := result[0], result[1], result[2]

	if negative != nil {
		return nil, fmt.Errorf("%w: %s (cached)", signing.ErrUnknownKey, keyID)
	}
	if data == nil {
		return nil, errCacheMiss
	}
	if fresh == nil {
		c.refresh(ctx, keyID)
	}

	line, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("unable to interpret redis value as string: %v", data)
	}
	return parseAuthorizedKey([]byte(line))
}

// fill resolves keyID upstream and stores the result. Errors writing to Redis
// are recorded but not returned.
func (c *Cache) fill(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	log := logger.With(logging.GetFields(ctx)...)
	span := trace.SpanFromContext(ctx)

	key, err := c.upstream.ResolveKey(ctx, keyID)
	if errors.Is(err, signing.ErrUnknownKey) {
		span.SetAttributes(attribute.String("cache.result", "negative"))
		if setErr := c.setNegative(ctx, keyID); setErr != nil {
			recordError(ctx, setErr)
			log.Warn("key cache set negative failed", zap.Error(setErr))
		}
		return nil, err
	} else if err != nil {
		span.SetAttributes(attribute.String("cache.result", "error"))
		recordError(ctx, err)
		return nil, err
	}

	if _, secret := key.([]byte); secret {
		span.SetAttributes(attribute.String("cache.result", "uncacheable"))
		return key, nil
	}

	span.SetAttributes(attribute.String("cache.result", "success"))
	if err := c.set(ctx, keyID, key); err != nil {
		recordError(ctx, err)
		log.Warn("key cache fill failed", zap.String("key_id", keyID), zap.Error(err))
	}
	return key, nil
}

func (c *Cache) set(ctx context.Context, keyID string, key crypto.PublicKey) error {
	line, err := MarshalAuthorizedKey(key)
	if err != nil {
		return err
	}
	k := c.keysFor(keyID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, k.negative)
	pipe.Set(ctx, k.data, string(line), c.opts.stale)
	pipe.Set(ctx, k.fresh, 1, c.opts.fresh)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) setNegative(ctx context.Context, keyID string) error {
	if c.opts.negative == 0 {
		return nil
	}
	return c.client.Set(ctx, c.keysFor(keyID).negative, 1, c.opts.negative).Err()
}

// refresh refills a stale entry in the background. Only the caller that wins
// the refresh lock does the work; everyone else keeps serving the stale key.
func (c *Cache) refresh(ctx context.Context, keyID string) {
	k := c.keysFor(keyID)
	token := ksuid.New().String()

	ok, err := c.client.SetNX(ctx, k.lock, token, c.opts.stale).Result()
	if err != nil {
		sentry.CaptureException(fmt.Errorf("error acquiring key cache lock: %w", err))
		return
	}
	if !ok {
		return
	}

	link := trace.LinkFromContext(ctx)
	ctx, span := tracer.Start(
		context.Background(),
		"keys.cache.miss",
		trace.WithLinks(link),
		trace.WithAttributes(c.spanAttributes(keyID)...),
		trace.WithAttributes(attribute.String("cache.miss", "soft")),
	)

	go func() {
		defer span.End()
		defer func() {
			if err := releaseScript.Run(ctx, c.client, []string{k.lock}, token).Err(); err != nil {
				recordError(ctx, fmt.Errorf("error releasing key cache lock: %w", err))
			}
		}()

		_, _ = c.fill(ctx, keyID)
	}()
}

type cacheKeys struct {
	data     string
	fresh    string
	lock     string
	negative string
}

func (c *Cache) keysFor(keyID string) cacheKeys {
	return cacheKeys{
		data:     fmt.Sprintf("keys:data:%s:%s", c.name, keyID),
		fresh:    fmt.Sprintf("keys:fresh:%s:%s", c.name, keyID),
		lock:     fmt.Sprintf("keys:lock:%s:%s", c.name, keyID),
		negative: fmt.Sprintf("keys:negative:%s:%s", c.name, keyID),
	}
}

func (c *Cache) spanAttributes(keyID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("cache.name", c.name),
		attribute.String("signing.key_id", keyID),
	}
}

func recordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, err.Error())
	sentry.CaptureException(err)
}
