package gateway

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	obslogger "github.com/smallbiznis/racepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/racepay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway.phonepe",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Redis   *redis.Client           `optional:"true"`
	Metrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func New(p Params) *Client {
	log := p.Log.Named("gateway.phonepe")
	cache := NewTokenCache(p.Clock, NewRedisTokenStore(p.Redis))
	log.Info("gateway client configured",
		zap.String("environment", p.Config.Gateway.Environment),
		zap.String("api_base_url", p.Config.Gateway.APIBaseURL),
		obslogger.Masked("client_id", p.Config.Gateway.ClientID),
		zap.Bool("shared_token_cache", p.Redis != nil),
	)
	if !p.Config.Webhook.Enabled() {
		log.Warn("webhook credentials not set, signature verification disabled")
	}
	return NewClient(ConfigFrom(p.Config),
		WithLogger(log),
		WithTokenCache(cache),
		WithMetrics(p.Metrics),
	)
}
