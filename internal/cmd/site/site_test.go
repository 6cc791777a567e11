package site

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_ParsesEnvAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("site", flag.ContinueOnError)
	t.Setenv("VITRINE_PUBLIC_URL", "https://vitrine.example/")
	t.Setenv("VITRINE_CMS_URL", "https://cms.example/api")
	t.Setenv("VITRINE_REVALIDATE_SECRET", "s3cret")
	t.Setenv("VITRINE_TRUST_FORWARDED_PROTO", "true")

	cfg, err := ParseConfig(fs, []string{"-http-addr", "127.0.0.1:9000", "-cache-backend", "sqlite"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "https://vitrine.example", cfg.PublicURL)
	assert.Equal(t, "https://cms.example/api", cfg.CMSURL)
	assert.Equal(t, "s3cret", cfg.RevalidateSecret)
	assert.Equal(t, "sqlite", cfg.CacheBackend)
	assert.Equal(t, "data/cache.db", cfg.CachePath)
	assert.True(t, cfg.TrustForwardedProto)
}

func TestParseConfig_RequiresPublicURLInProduction(t *testing.T) {
	fs := flag.NewFlagSet("site", flag.ContinueOnError)
	t.Setenv("VITRINE_ENV", "production")
	t.Setenv("VITRINE_PUBLIC_URL", "")
	t.Setenv("VITRINE_CMS_URL", "https://cms.example/api")

	_, err := ParseConfig(fs, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VITRINE_PUBLIC_URL")
}

func TestParseConfig_DevelopmentFallbacks(t *testing.T) {
	fs := flag.NewFlagSet("site", flag.ContinueOnError)
	t.Setenv("VITRINE_ENV", "development")
	t.Setenv("VITRINE_PUBLIC_URL", "")
	t.Setenv("VITRINE_CMS_URL", "")

	cfg, err := ParseConfig(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, devPublicURL, cfg.PublicURL)
	assert.Equal(t, devCMSURL, cfg.CMSURL)
	assert.Equal(t, "memory", cfg.CacheBackend)
}

func TestOpenRedisRequiresURL(t *testing.T) {
	client, err := openRedis(context.Background(), Config{CacheBackend: "redis"})
	require.Error(t, err)
	assert.Nil(t, client)

	client, err = openRedis(context.Background(), Config{CacheBackend: "memory"})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestAuthLoginURL(t *testing.T) {
	assert.Equal(t, "", authLoginURL(" "))
	assert.Equal(t, "https://auth.example/login", authLoginURL("https://auth.example/"))
}
