package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       int          `yaml:"port"`
	SecretFile string       `yaml:"secretFile"`
	Digests    Digests      `yaml:"digests"`
	Sites      []SiteConfig `yaml:"sites"`
}

type Digests struct {
	// Provider is "memory" or "sqlite".
	Provider string `yaml:"provider"`
}

type SiteConfig struct {
	// Route prefix to mount the site under, e.g. "/static".
	Route string `yaml:"route"`
	// Root directory to serve.
	Root string `yaml:"root"`
	// MaxAge is the cache lifetime in seconds.
	MaxAge int `yaml:"maxAge"`
	// HTTPPublic and HTTPSPublic select Cache-Control: public for the
	// respective scheme.
	HTTPPublic  bool `yaml:"httpPublic"`
	HTTPSPublic bool `yaml:"httpsPublic"`
	// RewriteCSS enables stylesheet cachebreaker rewriting.
	RewriteCSS bool `yaml:"rewriteCss"`
	// DefaultType is the Content-Type for unknown extensions.
	DefaultType string `yaml:"defaultType"`
	// DigestFile is the sqlite database for persisted digests.
	// Only used with the sqlite provider; empty means in-memory.
	DigestFile string `yaml:"digestFile"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
