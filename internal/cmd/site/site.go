// Package site parses site command configuration and wires the site runtime.
package site

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/vitrine/internal/platform/cmd"
	"github.com/louisbranch/vitrine/internal/platform/config"
	"github.com/louisbranch/vitrine/internal/platform/i18n/catalog"
	"github.com/louisbranch/vitrine/internal/platform/logging"
	"github.com/louisbranch/vitrine/internal/platform/metrics"
	platformredis "github.com/louisbranch/vitrine/internal/platform/redis"
	"github.com/louisbranch/vitrine/internal/platform/timeouts"
	"github.com/louisbranch/vitrine/internal/platform/upstream"
	sitesvc "github.com/louisbranch/vitrine/internal/services/site"
	"github.com/louisbranch/vitrine/internal/services/site/authredirect"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/cache/backend"
	"github.com/louisbranch/vitrine/internal/services/site/checkout"
	"github.com/louisbranch/vitrine/internal/services/site/contact"
	"github.com/louisbranch/vitrine/internal/services/site/content"
	"github.com/louisbranch/vitrine/internal/services/site/platform/requestmeta"
	"github.com/louisbranch/vitrine/internal/services/site/reviews"
)

// Config holds site command configuration.
type Config struct {
	HTTPAddr    string `env:"VITRINE_HTTP_ADDR" envDefault:":8080"`
	Environment string `env:"VITRINE_ENV" envDefault:"production"`
	PublicURL   string `env:"VITRINE_PUBLIC_URL"`
	LogLevel    string `env:"VITRINE_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"VITRINE_LOG_FORMAT" envDefault:"json"`

	RevalidateSecret string `env:"VITRINE_REVALIDATE_SECRET"`
	TagManagerID     string `env:"VITRINE_GTM_ID"`

	CMSURL   string        `env:"VITRINE_CMS_URL"`
	CMSToken string        `env:"VITRINE_CMS_TOKEN"`
	CacheTTL time.Duration `env:"VITRINE_CACHE_TTL" envDefault:"1h"`

	PaymentsURL string `env:"VITRINE_PAYMENTS_URL"`
	PaymentsKey string `env:"VITRINE_PAYMENTS_KEY"`

	MapsURL     string `env:"VITRINE_MAPS_URL" envDefault:"https://maps.googleapis.com/maps/api"`
	MapsKey     string `env:"VITRINE_MAPS_KEY"`
	MapsPlaceID string `env:"VITRINE_MAPS_PLACE_ID"`

	ContactURL   string `env:"VITRINE_CONTACT_URL"`
	ContactEmail string `env:"VITRINE_CONTACT_EMAIL"`

	AuthURL        string `env:"VITRINE_AUTH_URL"`
	AuthSigningKey string `env:"VITRINE_AUTH_SIGNING_KEY"`

	CacheBackend string `env:"VITRINE_CACHE_BACKEND" envDefault:"memory"`
	CachePath    string `env:"VITRINE_CACHE_PATH" envDefault:"data/cache.db"`
	RedisURL     string `env:"VITRINE_REDIS_URL"`

	TrustForwardedProto bool `env:"VITRINE_TRUST_FORWARDED_PROTO"`
}

const (
	devPublicURL = "http://localhost:8080"
	devCMSURL    = "http://localhost:1337/api"
)

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	err := entrypoint.ParseConfigFromArgs(&cfg, fs, args, func(fs *flag.FlagSet, cfg *Config) {
		fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
		fs.StringVar(&cfg.Environment, "env", cfg.Environment, "Deployment environment (development or production)")
		fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "Public origin of the site")
		fs.StringVar(&cfg.CMSURL, "cms-url", cfg.CMSURL, "Headless CMS API base URL")
		fs.StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, "Content cache backend (memory, sqlite or redis)")
		fs.StringVar(&cfg.CachePath, "cache-path", cfg.CachePath, "SQLite content cache path")
		fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the redis cache backend")
		fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	})
	if err != nil {
		return Config{}, err
	}

	environment := config.ParseEnvironment(cfg.Environment)
	if cfg.PublicURL, err = config.RequireInProduction(environment, "VITRINE_PUBLIC_URL", cfg.PublicURL, devPublicURL); err != nil {
		return Config{}, err
	}
	if cfg.CMSURL, err = config.RequireInProduction(environment, "VITRINE_CMS_URL", cfg.CMSURL, devCMSURL); err != nil {
		return Config{}, err
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return cfg, nil
}

// Run starts the site.
func Run(ctx context.Context, cfg Config) error {
	options := entrypoint.RunOptions{
		Log:             logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stdout},
		ShutdownTimeout: timeouts.Shutdown,
	}
	return entrypoint.Run(ctx, entrypoint.ServiceSite, options, func(ctx context.Context, logger *slog.Logger) error {
		return run(ctx, cfg, logger)
	})
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	m := metrics.New()
	clientOpts := []upstream.Option{upstream.WithLogger(logger), upstream.WithMetrics(m)}

	redisClient, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	backendCfg := backend.Config{Backend: cfg.CacheBackend, Path: cfg.CachePath}
	if redisClient != nil {
		backendCfg.Redis = redisClient.Client
	}
	store, err := backend.Open(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer store.Close()
	contentCache := cache.New(store, cache.WithLogger(logger), cache.WithMetrics(m))

	bundle, err := catalog.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	cms, err := content.NewClient(cfg.CMSURL, cfg.CMSToken, clientOpts...)
	if err != nil {
		return fmt.Errorf("init cms client: %w", err)
	}

	siteCfg := sitesvc.Config{
		Logger:           logger,
		Metrics:          m,
		Catalog:          bundle,
		Cache:            contentCache,
		Content:          content.NewService(cms, contentCache, content.WithTTL(cfg.CacheTTL)),
		RevalidateSecret: cfg.RevalidateSecret,
		PublicURL:        cfg.PublicURL,
		TagManagerID:     strings.TrimSpace(cfg.TagManagerID),
		Policy:           requestmeta.SchemePolicy{TrustForwardedProto: cfg.TrustForwardedProto},
		ContactEmail:     strings.TrimSpace(cfg.ContactEmail),
		AuthLoginURL:     authLoginURL(cfg.AuthURL),
		Verifier:         authredirect.NewVerifier(cfg.AuthSigningKey),
	}
	if redisClient != nil {
		siteCfg.Health = redisClient.Health
	}
	if strings.TrimSpace(cfg.RevalidateSecret) == "" {
		logger.Warn("VITRINE_REVALIDATE_SECRET is empty; revalidation requests will be rejected")
	}

	if strings.TrimSpace(cfg.MapsKey) != "" {
		maps, err := reviews.NewClient(cfg.MapsURL, cfg.MapsKey, clientOpts...)
		if err != nil {
			return fmt.Errorf("init maps client: %w", err)
		}
		siteCfg.Reviews = reviews.NewService(maps, contentCache, cfg.MapsPlaceID)
	}
	if strings.TrimSpace(cfg.ContactURL) != "" {
		sender, err := contact.NewClient(cfg.ContactURL, clientOpts...)
		if err != nil {
			return fmt.Errorf("init contact client: %w", err)
		}
		siteCfg.Contact = sender
	}
	if strings.TrimSpace(cfg.PaymentsURL) != "" {
		payments, err := checkout.NewClient(cfg.PaymentsURL, cfg.PaymentsKey, clientOpts...)
		if err != nil {
			return fmt.Errorf("init payments client: %w", err)
		}
		siteCfg.Checkout = payments
	}
	if strings.TrimSpace(cfg.AuthURL) != "" {
		profiles, err := authredirect.NewClient(cfg.AuthURL, clientOpts...)
		if err != nil {
			return fmt.Errorf("init auth client: %w", err)
		}
		siteCfg.Profiles = profiles
	}

	handler, err := sitesvc.NewHandler(siteCfg)
	if err != nil {
		return fmt.Errorf("init site handler: %w", err)
	}
	server, err := sitesvc.NewServer(cfg.HTTPAddr, handler, contentCache, logger)
	if err != nil {
		return fmt.Errorf("init site server: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve site: %w", err)
	}
	return nil
}

func openRedis(ctx context.Context, cfg Config) (*platformredis.Client, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.CacheBackend), backend.Redis) {
		return nil, nil
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("VITRINE_REDIS_URL is required for the redis cache backend")
	}
	client, err := platformredis.New(ctx, platformredis.Config{URL: cfg.RedisURL})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func authLoginURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	return base + "/login"
}
