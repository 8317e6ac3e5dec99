// Package config provides a reusable loader for the bootstrap server's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.2.0
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"synnergy-bootstrap/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config is the exhaustive set of options the bootstrap core consumes
// (spec §6.2).
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	MaxBootstrapMessageSize   uint64 `mapstructure:"max_bootstrap_message_size" json:"max_bootstrap_message_size"`
	RandomnessSizeBytes       int    `mapstructure:"randomness_size_bytes" json:"randomness_size_bytes"`
	MaxSimultaneousBootstraps int    `mapstructure:"max_simultaneous_bootstraps" json:"max_simultaneous_bootstraps"`

	PerIPMinInterval time.Duration `mapstructure:"per_ip_min_interval" json:"per_ip_min_interval"`
	IPListMaxSize    int           `mapstructure:"ip_list_max_size" json:"ip_list_max_size"`

	BootstrapWhitelistPath string        `mapstructure:"bootstrap_whitelist_path" json:"bootstrap_whitelist_path"`
	BootstrapBlacklistPath string        `mapstructure:"bootstrap_blacklist_path" json:"bootstrap_blacklist_path"`
	CacheDuration          time.Duration `mapstructure:"cache_duration" json:"cache_duration"`

	ReadTimeout      time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ReadErrorTimeout time.Duration `mapstructure:"read_error_timeout" json:"read_error_timeout"`
	BootstrapTimeout time.Duration `mapstructure:"bootstrap_timeout" json:"bootstrap_timeout"`

	BootstrapPartSize int `mapstructure:"bootstrap_part_size" json:"bootstrap_part_size"`

	// TrustedPeerPublicKeyHex pins the long-term ed25519 public key every
	// inbound session is verified against (spec §3.4's remote_pubkey). The
	// core treats peer-identity resolution as an external collaborator
	// (§1 non-goals); this single shared key is the reference CLI's
	// simplification of that out-of-scope registry.
	TrustedPeerPublicKeyHex string `mapstructure:"trusted_peer_public_key" json:"trusted_peer_public_key"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Defaults mirrors the values end-to-end scenario 1 (spec §8) exercises.
func Defaults() Config {
	c := Config{
		ListenAddr:                "0.0.0.0:4242",
		MaxBootstrapMessageSize:   1 << 20,
		RandomnessSizeBytes:       32,
		MaxSimultaneousBootstraps: 2,
		PerIPMinInterval:          10 * time.Minute,
		IPListMaxSize:             1000,
		CacheDuration:             30 * time.Second,
		ReadTimeout:               30 * time.Second,
		WriteTimeout:              10 * time.Second,
		ReadErrorTimeout:          200 * time.Millisecond,
		BootstrapTimeout:          5 * time.Minute,
		BootstrapPartSize:         100,
	}
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	AppConfig = Defaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("synb")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SYNB_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SYNB_ENV", ""))
}
