package config

import (
	"github.com/spf13/pflag"
)

// AuditConfig holds configuration for the audit command.
type AuditConfig struct {
	Store    StoreConfig
	Contract string
	Address  string
	Out      string
	Log      LogConfig
}

// LoadAudit merges config file, environment variables, and flags into AuditConfig.
func LoadAudit(cfgFile string, flags *pflag.FlagSet) (AuditConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"store":       "postgres",
		"sqlite-path": "./data/wasmscope.db",
	})
	if err != nil {
		return AuditConfig{}, err
	}

	cfg := AuditConfig{
		Store:    loadStore(v),
		Contract: v.GetString("contract"),
		Address:  v.GetString("address"),
		Out:      v.GetString("out"),
		Log:      loadLog(v),
	}

	return cfg, nil
}
