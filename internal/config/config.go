// package config reads the optional server configuration file.
//
// Flags passed to the serve command override the file; environment
// variables override both.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Conf struct {
		Addr          string `yaml:"addr"`
		Domain        string `yaml:"domain"`
		SecureMode    bool   `yaml:"secureMode"`
		Workers       int    `yaml:"workers"`
		DomainLimit   int    `yaml:"domainLimit"`
		AccountLimit  int    `yaml:"accountLimit"`
		ThrottleSecs  int    `yaml:"throttleSecs"`
		DeliveryGiveUpMins int `yaml:"deliveryGiveUpMins"`
	} `yaml:"conf"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.Conf.Addr = ":9443"
	c.Conf.Workers = 8
	c.Conf.DomainLimit = 8640
	c.Conf.AccountLimit = 8640
	c.Conf.ThrottleSecs = 10
	c.Conf.DeliveryGiveUpMins = 30
	return c
}

// Read loads the configuration from path, falling back to defaults if the
// file does not exist, then applies environment overrides.
func Read(path string) (*Config, error) {
	c := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("in config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("SORREL_ADDR"); v != "" {
		c.Conf.Addr = v
	}
	if v := os.Getenv("SORREL_DOMAIN"); v != "" {
		c.Conf.Domain = v
	}
	if v := os.Getenv("SORREL_SECURE_MODE"); v == "true" {
		c.Conf.SecureMode = true
	}
	if v := os.Getenv("SORREL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SORREL_WORKERS: %w", err)
		}
		c.Conf.Workers = n
	}
	return c, nil
}
