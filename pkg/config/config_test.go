package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.Notifications.Window)
	assert.Equal(t, 5, cfg.Allocator.MaxAttempts)
	assert.False(t, cfg.Ledger.EnforceTransitions)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", "MEMORY")
	v.Set("NOTIFICATION_WINDOW", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " http://a.example , ,http://b.example")
	v.Set("LEDGER_ENFORCE_TRANSITIONS", true)

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.Notifications.Window)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Ledger.EnforceTransitions)
}

func TestAllocatorLocation(t *testing.T) {
	assert.Equal(t, time.Local, AllocatorConfig{}.Location())
	assert.Equal(t, time.Local, AllocatorConfig{Timezone: "Mars/Olympus"}.Location())
	assert.Equal(t, "UTC", AllocatorConfig{Timezone: "UTC"}.Location().String())
}
