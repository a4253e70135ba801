// Package config initializes renderctl's configuration.
// Settings come from an optional config file, RENDERCTL_* environment variables, and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyServerURL   = "server.url"
	KeySessionFile = "session.file"
	KeyPreset      = "render.preset"
	KeyLogFile     = "log.file"
)

// Client is the resolved renderctl configuration.
type Client struct {
	ServerURL   string
	SessionFile string
	Preset      string
	LogFile     string
}

// InitConfig sets defaults and reads cfgFile, or config.yaml from the search path when empty.
// A missing config file is not an error.
func InitConfig(cfgFile string) error {
	viper.SetDefault(KeyServerURL, "http://localhost:8080")
	viper.SetDefault(KeySessionFile, filepath.Join(configDir(), "session.yaml"))
	viper.SetDefault(KeyPreset, "")
	viper.SetDefault(KeyLogFile, filepath.Join(configDir(), "renderctl.log"))

	viper.SetEnvPrefix("RENDERCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath(configDir())
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load returns the current settings.
func Load() Client {
	return Client{
		ServerURL:   viper.GetString(KeyServerURL),
		SessionFile: viper.GetString(KeySessionFile),
		Preset:      viper.GetString(KeyPreset),
		LogFile:     viper.GetString(KeyLogFile),
	}
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "renderctl")
	}
	return ".renderctl"
}
