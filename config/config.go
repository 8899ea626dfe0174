// Package config loads the application settings from a JSON file, TWEETER_*
// environment variables and built-in defaults, in that order of precedence
// from last to first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is the config file read when none is given.
const DefaultFile = ".config"

// Config represents the configuration settings of the application.
type Config struct {
	Pepper            string        `mapstructure:"pepper"`
	Port              int           `mapstructure:"port"`
	DataDir           string        `mapstructure:"data_dir"`
	SessionDB         string        `mapstructure:"session_db"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	LockStaleAfter    time.Duration `mapstructure:"lock_stale_after"`
	MaxAvatarBytes    int64         `mapstructure:"max_avatar_bytes"`
	PasswordMinLength int           `mapstructure:"password_min_length"`
	Env               string        `mapstructure:"env"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 9090)
	v.SetDefault("data_dir", ".")
	v.SetDefault("session_db", "./database/sessions.db")
	v.SetDefault("lock_timeout", "5s")
	v.SetDefault("lock_stale_after", "30s")
	v.SetDefault("max_avatar_bytes", 1<<20)
	v.SetDefault("password_min_length", 6)
	v.SetDefault("env", "development")
	v.SetDefault("pepper", "")
}

// LoadConfig loads the configuration from path. A missing file is fine when
// it is the default one; the environment and defaults still apply.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("tweeter")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
			return Config{}, fmt.Errorf("error reading %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// Validate ensures required values are present and sane.
func (c Config) Validate() error {
	if c.Pepper == "" {
		return errors.New("pepper is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.SessionDB == "" {
		return errors.New("session_db is required")
	}
	if c.LockTimeout <= 0 {
		return errors.New("lock_timeout must be positive")
	}
	if c.PasswordMinLength < 1 {
		return errors.New("password_min_length must be positive")
	}
	return nil
}

// Production reports whether the app runs in production mode.
func (c Config) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}
