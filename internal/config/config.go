// Package config loads xclibtool settings from a YAML file and environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	errs "github.com/jmgilman/go/errors"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is looked up in the working directory when EnvConfig is unset.
	FileName = ".xclibtool.yaml"

	defaultCacheDir = "~/.xclibtool/cache"
	defaultLogLevel = "warn"
)

// Environment variables. Each overrides the matching file setting.
const (
	EnvConfig          = "XCLIBTOOL_CONFIG"
	EnvEnabled         = "XCLIBTOOL_ENABLED"
	EnvCacheDir        = "XCLIBTOOL_CACHE_DIR"
	EnvLogLevel        = "XCLIBTOOL_LOG_LEVEL"
	EnvTrace           = "XCLIBTOOL_TRACE"
	EnvRemoteEndpoint  = "XCLIBTOOL_REMOTE_ENDPOINT"
	EnvRemoteBucket    = "XCLIBTOOL_REMOTE_BUCKET"
	EnvRemoteAccessKey = "XCLIBTOOL_REMOTE_ACCESS_KEY"
	EnvRemoteSecretKey = "XCLIBTOOL_REMOTE_SECRET_KEY"
)

// Config stores xclibtool settings.
type Config struct {
	// Path is the file the config was read from; empty if none was found.
	Path string `yaml:"-"`

	// Enabled turns the artifact cache on. When false every invocation runs
	// the native tool.
	Enabled bool `yaml:"enabled"`

	// CacheDir is the local cache root. "~" is expanded and relative paths
	// are resolved against the working directory.
	CacheDir string `yaml:"cache_dir"`

	// NativeTool is the command that runs the real libtool.
	NativeTool []string `yaml:"native_tool"`

	// LogLevel is a zap level name.
	LogLevel string `yaml:"log_level"`

	// TracePath, when set, receives a JSON decision trace per invocation.
	TracePath string `yaml:"trace_path"`

	Remote Remote `yaml:"remote"`
}

// Remote configures the shared S3-compatible cache.
type Remote struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Root      string `yaml:"root"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Upload publishes locally built entries. Producers (CI) set it;
	// consumers (developer machines) leave it off.
	Upload bool `yaml:"upload"`
}

// Configured reports whether a remote cache should be used.
func (r Remote) Configured() bool {
	return r.Endpoint != "" && r.Bucket != ""
}

// Default returns the settings used when no file or variable overrides them.
func Default() Config {
	return Config{
		Enabled:    true,
		CacheDir:   defaultCacheDir,
		NativeTool: []string{"xcrun", "libtool"},
		LogLevel:   defaultLogLevel,
		Remote:     Remote{UseSSL: true},
	}
}

// Load resolves the configuration for an invocation running in workDir.
//
// Precedence, highest first: environment (via src), config file, defaults.
// The file is $XCLIBTOOL_CONFIG if set, else FileName in workDir; a missing
// default file is not an error, a missing explicit one is.
func Load(workDir string, src Source) (*Config, error) {
	if src == nil {
		src = EnvSource{}
	}
	cfg := Default()

	path, explicit := lookup(src, EnvConfig)
	if !explicit {
		path = filepath.Join(workDir, FileName)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, errs.Wrapf(err, errs.CodeInvalidConfig, "loading config %s", path)
	}

	if err := cfg.applyOverrides(src); err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidConfig, "applying environment overrides")
	}

	if err := cfg.resolvePaths(workDir); err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidConfig, "resolving paths")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidConfig, "invalid config")
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	c.Path = path
	return nil
}

func (c *Config) applyOverrides(src Source) error {
	if v, ok := lookup(src, EnvEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEnabled, err)
		}
		c.Enabled = b
	}
	if v, ok := lookup(src, EnvCacheDir); ok {
		c.CacheDir = v
	}
	if v, ok := lookup(src, EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(src, EnvTrace); ok {
		c.TracePath = v
	}
	if v, ok := lookup(src, EnvRemoteEndpoint); ok {
		c.Remote.Endpoint = v
	}
	if v, ok := lookup(src, EnvRemoteBucket); ok {
		c.Remote.Bucket = v
	}
	if v, ok := lookup(src, EnvRemoteAccessKey); ok {
		c.Remote.AccessKey = v
	}
	if v, ok := lookup(src, EnvRemoteSecretKey); ok {
		c.Remote.SecretKey = v
	}
	return nil
}

func (c *Config) resolvePaths(workDir string) error {
	var err error
	if c.CacheDir, err = expand(workDir, c.CacheDir); err != nil {
		return err
	}
	if c.TracePath, err = expand(workDir, c.TracePath); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.NativeTool) == 0 || strings.TrimSpace(c.NativeTool[0]) == "" {
		return errors.New("native_tool must name a command")
	}
	if c.Enabled && c.CacheDir == "" {
		return errors.New("cache_dir is required when the cache is enabled")
	}
	if (c.Remote.Endpoint == "") != (c.Remote.Bucket == "") {
		return errors.New("remote.endpoint and remote.bucket must be set together")
	}
	return nil
}

func expand(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	p, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(workDir, p)
	}
	return filepath.Clean(p), nil
}

// lookup treats empty values like unset ones.
func lookup(src Source, key string) (string, bool) {
	v, err := src.Get(key)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}
