package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	v := viper.New()
	setDefaults(v)

	c, err := parse(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Server.Port)
	assert.Equal(t, 5*time.Second, c.Notifications.DuplicateWindow)
	assert.Equal(t, 5*time.Minute, c.Realtime.RevalidateInterval)
	assert.Equal(t, 50, c.Realtime.PendingLimit)
	assert.Equal(t, 90*24*time.Hour, c.Notifications.LogRetention)
	assert.Equal(t, "mongo", c.Storage.Driver)
	assert.NotEmpty(t, c.Server.ServiceID)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9000")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("NOTIFICATIONS_BROWSER_CONCURRENCY", "3")

	v := viper.New()
	setDefaults(v)
	c, err := parse(v)
	require.NoError(t, err)

	assert.Equal(t, "9000", c.Server.Port)
	assert.Equal(t, "mongodb://localhost:27017", c.MongoDB.URI)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 3, c.Notifications.BrowserConcurrency)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE_DRIVER", "postgres")

	v := viper.New()
	setDefaults(v)
	_, err := parse(v)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestValidateRequiresJWTSecret(t *testing.T) {
	for _, driver := range []string{"mongo", "memory"} {
		t.Run(driver, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			t.Setenv("STORAGE_DRIVER", driver)

			v := viper.New()
			setDefaults(v)
			_, err := parse(v)
			assert.ErrorContains(t, err, "jwt.secret is required")
		})
	}
}
