package config

import (
	"strconv"
	"time"

	"github.com/apex/log"
)

// Configer is the lookup surface every config source provides. Keys are the
// MCSYNC_* environment style names listed in keys.go.
type Configer interface {
	LoadFromPath(path string) error
	Load() error
	GetKey(key string) string
	MustGetKey(key string) string
	GetKeyWithDefault(key, defaultValue string) string
	GetIntKey(key string) int
	MustGetIntKey(key string) int
	GetIntKeyWithDefault(key string, defaultValue int) int
	GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration
}

// keyGetter lets the shared helpers below work over any source.
type keyGetter func(key string) string

func (get keyGetter) mustGetKey(key string) string {
	val := get(key)
	if val == "" {
		log.Fatalf("No such required config key: '%s'", key)
	}

	return val
}

func (get keyGetter) getKeyWithDefault(key, defaultValue string) string {
	if val := get(key); val != "" {
		return val
	}

	return defaultValue
}

func (get keyGetter) getIntKeyWithDefault(key string, defaultValue int) int {
	intVal, err := strconv.Atoi(get(key))
	if err != nil {
		return defaultValue
	}

	return intVal
}

func (get keyGetter) mustGetIntKey(key string) int {
	intVal, err := strconv.Atoi(get(key))
	if err != nil {
		log.Fatalf("Required config key either doesn't exist or isn't an int: '%s': %s", key, err)
	}

	return intVal
}

// getDurationKeyWithDefault accepts Go durations ("30s") or a bare number of seconds.
func (get keyGetter) getDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration {
	val := get(key)
	if val == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(val); err == nil {
		return d
	}

	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
