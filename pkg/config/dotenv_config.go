package config

import (
	"os"
	"time"

	"github.com/subosito/gotenv"
)

// DotenvConfig loads a dotenv file into the process environment and then
// reads keys from the environment.
type DotenvConfig struct {
	DotenvPath string
}

func NewDotenvConfig(path string) *DotenvConfig {
	return &DotenvConfig{DotenvPath: path}
}

func (c *DotenvConfig) LoadFromPath(path string) error {
	c.DotenvPath = path
	return c.Load()
}

func (c *DotenvConfig) Load() error {
	if c.DotenvPath == "" {
		return nil
	}

	return gotenv.Load(c.DotenvPath)
}

func (c *DotenvConfig) GetKey(key string) string {
	return os.Getenv(key)
}

func (c *DotenvConfig) MustGetKey(key string) string {
	return keyGetter(c.GetKey).mustGetKey(key)
}

func (c *DotenvConfig) GetKeyWithDefault(key, defaultValue string) string {
	return keyGetter(c.GetKey).getKeyWithDefault(key, defaultValue)
}

func (c *DotenvConfig) GetIntKey(key string) int {
	return keyGetter(c.GetKey).getIntKeyWithDefault(key, 0)
}

func (c *DotenvConfig) MustGetIntKey(key string) int {
	return keyGetter(c.GetKey).mustGetIntKey(key)
}

func (c *DotenvConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	return keyGetter(c.GetKey).getIntKeyWithDefault(key, defaultValue)
}

func (c *DotenvConfig) GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration {
	return keyGetter(c.GetKey).getDurationKeyWithDefault(key, defaultValue)
}
