// Package directory resolves tenant configuration for inbound events: which
// business owns a channel identifier, its credentials and its tone profile.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wa-bridge/internal/cache"
	"wa-bridge/internal/repo"
)

// Directory answers tenant lookups, caching channel configs in Redis since
// every webhook event resolves one.
type Directory struct {
	repo   repo.Repository
	cache  *cache.Redis
	logger *slog.Logger
	ttl    time.Duration
}

// New creates a Directory. The redis client may be nil, in which case every
// lookup hits the store.
func New(repository repo.Repository, redis *cache.Redis, logger *slog.Logger, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Directory{
		repo:   repository,
		cache:  redis,
		logger: logger.With("component", "directory"),
		ttl:    ttl,
	}
}

// ResolveChannelConfig returns the active config servicing a provider
// phone-number id. repo.ErrNotFound means the channel is unknown here.
func (d *Directory) ResolveChannelConfig(ctx context.Context, phoneNumberID string) (*repo.ChannelConfig, error) {
	key := configCacheKey(phoneNumberID)
	if d.cache != nil {
		var cached repo.ChannelConfig
		ok, err := d.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			d.logger.Warn("read channel config cache failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	cfg, err := d.repo.GetChannelConfigByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.SetJSON(ctx, key, cfg, d.ttl); err != nil {
			d.logger.Warn("set channel config cache failed", "error", err)
		}
	}
	return cfg, nil
}

// ResolveByVerifyToken identifies the tenant during a webhook handshake,
// which carries no channel identifier. Not cached; handshakes are rare.
func (d *Directory) ResolveByVerifyToken(ctx context.Context, verifyToken string) (*repo.ChannelConfig, error) {
	return d.repo.GetChannelConfigByVerifyToken(ctx, verifyToken)
}

// VerifySecret returns the stored verification secret matching the presented
// handshake token. Satisfies the webhook handler's resolver interface.
func (d *Directory) VerifySecret(ctx context.Context, token string) (string, error) {
	cfg, err := d.ResolveByVerifyToken(ctx, token)
	if err != nil {
		return "", err
	}
	return cfg.VerifyToken, nil
}

// DefaultTone returns the business's default tone, or nil when none is
// marked default. In that case the generator falls back to its unstyled
// system prompt.
func (d *Directory) DefaultTone(ctx context.Context, businessID string) (*repo.Tone, error) {
	tone, err := d.repo.GetDefaultTone(ctx, businessID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tone, nil
}

// InvalidateChannel drops a cached config after admin writes so credential
// rotations take effect without waiting out the TTL.
func (d *Directory) InvalidateChannel(ctx context.Context, phoneNumberID string) {
	if d.cache == nil || phoneNumberID == "" {
		return
	}
	if err := d.cache.Delete(ctx, configCacheKey(phoneNumberID)); err != nil {
		d.logger.Warn("invalidate channel config cache failed", "phone_number_id", phoneNumberID, "error", err)
	}
}

func configCacheKey(phoneNumberID string) string {
	return fmt.Sprintf("wabridge:channel_config:%s", phoneNumberID)
}
