package cache_test

import (
	"testing"

	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/cache/cachetest"
)

func TestMemoryStoreContract(t *testing.T) {
	cachetest.RunStoreContract(t, func(*testing.T) cache.Store {
		return cache.NewMemoryStore()
	})
}
