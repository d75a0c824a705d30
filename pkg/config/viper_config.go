package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ViperConfig reads keys from (in priority order) bound command line flags,
// MCSYNC_* environment variables and an optional config file.
type ViperConfig struct {
	v *viper.Viper
}

func NewViperConfig() *ViperConfig {
	v := viper.New()
	v.SetEnvPrefix("MCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return &ViperConfig{v: v}
}

// BindFlag makes a cobra/pflag flag answer for key. The key is the full
// MCSYNC_* name, so "MCSYNC_ROOT" binds to the "root" flag.
func (c *ViperConfig) BindFlag(key string, flag *pflag.Flag) error {
	return c.v.BindPFlag(viperKey(key), flag)
}

func (c *ViperConfig) LoadFromPath(path string) error {
	c.v.SetConfigFile(path)
	return c.Load()
}

func (c *ViperConfig) Load() error {
	if c.v.ConfigFileUsed() == "" {
		return nil
	}

	return c.v.ReadInConfig()
}

func (c *ViperConfig) GetKey(key string) string {
	return c.v.GetString(viperKey(key))
}

func (c *ViperConfig) MustGetKey(key string) string {
	return keyGetter(c.GetKey).mustGetKey(key)
}

func (c *ViperConfig) GetKeyWithDefault(key, defaultValue string) string {
	return keyGetter(c.GetKey).getKeyWithDefault(key, defaultValue)
}

func (c *ViperConfig) GetIntKey(key string) int {
	return keyGetter(c.GetKey).getIntKeyWithDefault(key, 0)
}

func (c *ViperConfig) MustGetIntKey(key string) int {
	return keyGetter(c.GetKey).mustGetIntKey(key)
}

func (c *ViperConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	return keyGetter(c.GetKey).getIntKeyWithDefault(key, defaultValue)
}

func (c *ViperConfig) GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration {
	return keyGetter(c.GetKey).getDurationKeyWithDefault(key, defaultValue)
}

// viperKey strips the env prefix; viper re-adds it when consulting the environment.
func viperKey(key string) string {
	return strings.ToLower(strings.TrimPrefix(key, "MCSYNC_"))
}
