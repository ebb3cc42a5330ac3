package repository

import (
	"context"
	"errors"
	"time"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/pkg/cache"
	applogger "EventHorizon/pkg/logger"
)

// VerdictCache memoises verdicts in a cache.Service. The key carries the
// calibration fingerprint, so a recalibration never serves stale verdicts.
type VerdictCache struct {
	svc cache.Service
	ttl time.Duration
	l   *applogger.Logger
}

func NewVerdictCache(svc cache.Service, ttl time.Duration, l *applogger.Logger) domrepo.VerdictCache {
	if l == nil {
		l = applogger.Nop()
	}
	return &VerdictCache{svc: svc, ttl: ttl, l: l}
}

func verdictKey(fingerprint, curveKey string) string {
	return cache.Key("verdict", fingerprint, curveKey)
}

func (c *VerdictCache) Get(ctx context.Context, curve models.Curve, fingerprint string) (models.Verdict, bool) {
	var v models.Verdict
	err := c.svc.Get(ctx, verdictKey(fingerprint, curve.Key()), &v)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.l.Warn("verdict cache read failed", applogger.String("curve", curve.Key()), applogger.Error(err))
		}
		return models.Verdict{}, false
	}
	return v, true
}

func (c *VerdictCache) Set(ctx context.Context, v models.Verdict) error {
	return c.svc.Set(ctx, verdictKey(v.Fingerprint, v.A+":"+v.B), v, c.ttl)
}
