package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".config")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `{"pepper": "pep", "port": 8080, "lock_timeout": "2s"}`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pep", c.Pepper)
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, 2*time.Second, c.LockTimeout)
	assert.Equal(t, 30*time.Second, c.LockStaleAfter)
	assert.Equal(t, ".", c.DataDir)
	assert.Equal(t, "./database/sessions.db", c.SessionDB)
	assert.Equal(t, int64(1<<20), c.MaxAvatarBytes)
	assert.Equal(t, 6, c.PasswordMinLength)
	assert.False(t, c.Production())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"pepper": "pep", "port": 8080}`)
	t.Setenv("TWEETER_PORT", "7070")
	t.Setenv("TWEETER_ENV", "production")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Port)
	assert.True(t, c.Production())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "an explicit file must exist")

	_, err = LoadConfig(writeConfig(t, `{"pepper": `))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `{"port": 8080}`))
	assert.ErrorContains(t, err, "pepper")
}

func TestValidate(t *testing.T) {
	good := Config{Pepper: "p", Port: 1, DataDir: ".", SessionDB: "s.db", LockTimeout: time.Second, PasswordMinLength: 6}
	require.NoError(t, good.Validate())

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"no pepper", func(c *Config) { c.Pepper = "" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"no session db", func(c *Config) { c.SessionDB = "" }},
		{"no lock timeout", func(c *Config) { c.LockTimeout = 0 }},
		{"no password length", func(c *Config) { c.PasswordMinLength = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mod(&c)
			assert.Error(t, c.Validate())
		})
	}
}
