package config

import (
	"errors"
	"os"
)

// ErrConfigNotFound is returned by a Source that has no value for a key.
var ErrConfigNotFound = errors.New("config not found")

// Source defines a lookup of raw configuration values.
type Source interface {
	Name() string
	Get(key string) (string, error)
}

var (
	_ Source = (*EnvSource)(nil)
	_ Source = MapSource(nil)
)

// EnvSource reads values from the process environment.
type EnvSource struct{}

func (EnvSource) Name() string {
	return "env"
}

func (EnvSource) Get(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", ErrConfigNotFound
	}
	return value, nil
}

// MapSource serves values from a fixed map.
type MapSource map[string]string

func (MapSource) Name() string {
	return "map"
}

func (m MapSource) Get(key string) (string, error) {
	value, ok := m[key]
	if !ok {
		return "", ErrConfigNotFound
	}
	return value, nil
}
