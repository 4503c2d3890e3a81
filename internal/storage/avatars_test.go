package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/config"
)

func testStore(t *testing.T) *AvatarStore {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	s, err := NewAvatarStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewKey(t *testing.T) {
	key := NewKey("04A1B2")
	assert.True(t, strings.HasPrefix(key, "avatars/04A1B2/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, NewKey("04A1B2"))
	assert.True(t, OwnsKey("04A1B2", key))
	assert.False(t, OwnsKey("04A1B", key))
}

func TestPresignUpload_PathStyle(t *testing.T) {
	s := testStore(t)
	key := "avatars/04A1B2/pic.jpg"

	raw, expiresAt, err := s.PresignUpload(context.Background(), key)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/avatars/"+key, u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestPresignDownload(t *testing.T) {
	s := testStore(t)

	raw, err := s.PresignDownload(context.Background(), "avatars/04A1B2/pic.jpg")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/avatars/avatars/04A1B2/pic.jpg", u.Path)
	assert.Contains(t, u.Query().Get("X-Amz-Credential"), "admin/")
}

func TestPresignDownload_ReusesURL(t *testing.T) {
	s := testStore(t)
	key := "avatars/04A1B2/pic.jpg"

	first, err := s.PresignDownload(context.Background(), key)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := s.PresignDownload(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.PresignDownload(context.Background(), "avatars/04A1B2/other.jpg")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}
