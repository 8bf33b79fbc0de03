package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// StoreConfig selects the entity store backend.
type StoreConfig struct {
	Backend    string
	PGDSN      string
	SQLitePath string
	Journal    string
}

// LogConfig selects the log level and an optional rotated log file.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Config holds configuration values of the run command loaded from flags,
// env, or config file.
type Config struct {
	Source            string
	In                string
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaGroup        string
	Store             StoreConfig
	Indexers          []string
	RPCURL            string
	AllowedCodeIDs    []string
	DaoCodeIDs        []string
	StakingContracts  []string
	PoolContracts     []string
	CodeIDCacheSize   int
	FromHeight        uint64
	ToHeight          uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	MetricsAddr       string
	Log               LogConfig
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"source":             "jsonl",
		"store":              "memory",
		"sqlite-path":        "./data/wasmscope.db",
		"indexers":           []string{"cw20"},
		"code-id-cache-size": 4096,
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Source:            v.GetString("source"),
		In:                v.GetString("in"),
		KafkaBrokers:      getStringSlice(v, "kafka-brokers"),
		KafkaTopic:        v.GetString("kafka-topic"),
		KafkaGroup:        v.GetString("kafka-group"),
		Store:             loadStore(v),
		Indexers:          getStringSlice(v, "indexers"),
		RPCURL:            v.GetString("rpc"),
		AllowedCodeIDs:    getStringSlice(v, "allowed-code-ids"),
		DaoCodeIDs:        getStringSlice(v, "dao-code-ids"),
		StakingContracts:  getStringSlice(v, "staking-contracts"),
		PoolContracts:     getStringSlice(v, "pool-contracts"),
		CodeIDCacheSize:   v.GetInt("code-id-cache-size"),
		FromHeight:        v.GetUint64("from"),
		ToHeight:          v.GetUint64("to"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MetricsAddr:       v.GetString("metrics-addr"),
		Log:               loadLog(v),
	}

	return cfg, nil
}

// newViper layers defaults, flags, INDEXER_ environment variables and the
// config file. Without an explicit file an optional ./config.* is read.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-max-size", 100)
	v.SetDefault("log-max-backups", 5)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadStore(v *viper.Viper) StoreConfig {
	return StoreConfig{
		Backend:    strings.ToLower(v.GetString("store")),
		PGDSN:      v.GetString("pg-dsn"),
		SQLitePath: v.GetString("sqlite-path"),
		Journal:    v.GetString("journal"),
	}
}

func loadLog(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:      v.GetString("log-level"),
		File:       v.GetString("log-file"),
		MaxSizeMB:  v.GetInt("log-max-size"),
		MaxBackups: v.GetInt("log-max-backups"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}
