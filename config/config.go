// Package config reads the per-user memfat configuration, which provides
// defaults for the command line flags.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the contents of config.yml.
type Config struct {
	// Image is the image file used when no --image flag is given.
	Image string `yaml:"image"`
	// Preset is the slug of the geometry for new images.
	Preset string `yaml:"preset"`
	// LogLevel is one of the logrus levels, e.g. "debug".
	LogLevel string `yaml:"log-level"`
	// ReuseDeleted lets new entries take over deleted ones.
	ReuseDeleted bool `yaml:"reuse-deleted"`
	// Mmap maps images into memory instead of loading them.
	Mmap bool `yaml:"mmap"`
}

func userConfigDir() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("https://golang.org/pkg/os/#UserConfigDir failed: %v", err)
	}
	return userConfigDir
}

// Typically ~/.config/memfat on Linux
// Typically ~/Library/Application\ Support/memfat on macOS/Darwin
func memfatConfigDir() string {
	return filepath.Join(userConfigDir(), "memfat")
}

func Memfat() string { return memfatConfigDir() }

// Dir is a directory containing a config.yml file.
type Dir string

// Path returns the path of the config.yml file.
func (d Dir) Path() string { return filepath.Join(string(d), "config.yml") }

// Load reads the configuration. A missing file results in the zero Config.
func (d Dir) Load() (Config, error) {
	var c Config
	b, err := os.ReadFile(d.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, errors.Wrapf(err, "reading %s", d.Path())
	}
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return c, errors.Wrapf(err, "parsing %s", d.Path())
	}
	return c, nil
}

// Level returns the configured log level, log.InfoLevel if none is set.
func (c Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel, errors.Wrap(err, "log-level")
	}
	return lvl, nil
}

// Load reads config.yml from the memfat configuration directory.
func Load() (Config, error) {
	return Dir(memfatConfigDir()).Load()
}
