package config

import (
	"fmt"
	"sync"
	"time"
)

// MapConfig is an in-memory Configer, mostly for tests.
type MapConfig struct {
	configValues sync.Map
}

func NewMapConfig(entries map[string]string) *MapConfig {
	c := &MapConfig{}

	for key, entry := range entries {
		c.configValues.Store(key, entry)
	}

	return c
}

func (c *MapConfig) Set(key, value string) {
	c.configValues.Store(key, value)
}

func (c *MapConfig) LoadFromPath(_ string) error {
	return fmt.Errorf("LoadFromPath not supported for MapConfig")
}

func (c *MapConfig) Load() error {
	return nil
}

func (c *MapConfig) GetKey(key string) string {
	v, ok := c.configValues.Load(key)
	if !ok || v == nil {
		return ""
	}

	return v.(string)
}

func (c *MapConfig) MustGetKey(key string) string {
	return keyGetter(c.GetKey).mustGetKey(key)
}

func (c *MapConfig) GetKeyWithDefault(key, defaultValue string) string {
	return keyGetter(c.GetKey).getKeyWithDefault(key, defaultValue)
}

func (c *MapConfig) GetIntKey(key string) int {
	return keyGetter(c.GetKey).getIntKeyWithDefault(key, 0)
}

func (c *MapConfig) MustGetIntKey(key string) int {
	return keyGetter(c.GetKey).mustGetIntKey(key)
}

func (c *MapConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	return keyGetter(c.GetKey).getIntKeyWithDefault(key, defaultValue)
}

func (c *MapConfig) GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration {
	return keyGetter(c.GetKey).getDurationKeyWithDefault(key, defaultValue)
}
