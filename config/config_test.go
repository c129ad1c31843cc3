package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "mongo", cfg.StoreDriver)
	assert.Equal(t, "bookings", cfg.BookingsCollection)
	assert.Equal(t, 60*time.Minute, cfg.SessionDuration)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, "https://meet.google.com/", cfg.MeetBaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SESSION_DURATION", "45m")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("TIME_ZONE", "Africa/Nairobi")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 45*time.Minute, cfg.SessionDuration)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, "Africa/Nairobi", cfg.Location().String())
}

func TestValidate(t *testing.T) {
	base, err := Load(viper.New())
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"unknown store":        func(c *Config) { c.StoreDriver = "cassandra" },
		"postgres without dsn": func(c *Config) { c.StoreDriver = "postgres" },
		"firestore no project": func(c *Config) { c.StoreDriver = "firestore" },
		"unknown calendar":     func(c *Config) { c.CalendarDriver = "outlook" },
		"unknown mail":         func(c *Config) { c.MailDriver = "pigeon" },
		"bad zone":             func(c *Config) { c.TimeZone = "Mars/Olympus" },
		"zero attempts":        func(c *Config) { c.RetryMaxAttempts = 0 },
		"zero duration":        func(c *Config) { c.SessionDuration = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
