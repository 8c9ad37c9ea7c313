package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientIsEmpty(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest map[string]int

	require.ErrorIs(t, repo.Get(context.Background(), "dash:admin", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(context.Background(), "dash:admin", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(context.Background(), "dash:*"))
	require.NoError(t, repo.Ping(context.Background()))
}
