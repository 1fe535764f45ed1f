package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "employees", nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "search:abc", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "search:abc", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "search:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryKeyNamespace(t *testing.T) {
	assert.Equal(t, "employees:search:abc", NewCacheRepository(nil, "employees", nil).key("search:abc"))
	assert.Equal(t, "search:abc", NewCacheRepository(nil, "", nil).key("search:abc"))
}
