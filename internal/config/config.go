package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	Backend           string
	ClickHouseDSN     string
	PGDSN             string
	Out               string
	PoolsFile         string
	Pools             []string
	StartBlock        uint64
	EndBlock          uint64
	MaxWorkUnits      int64
	BatchSize         int
	Workers           int
	TickInfo          bool
	Slot0             bool
	Trades            bool
	Checkpoint        string
	CheckpointEnabled bool
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSTATES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", "clickhouse")
	v.SetDefault("out", "./data/records.jsonl")
	v.SetDefault("max-work-units", 24)
	v.SetDefault("batch-size", 500)
	v.SetDefault("tick-info", true)
	v.SetDefault("slot0", true)
	v.SetDefault("trades", true)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Backend:           strings.ToLower(v.GetString("backend")),
		ClickHouseDSN:     v.GetString("clickhouse-dsn"),
		PGDSN:             v.GetString("pg-dsn"),
		Out:               v.GetString("out"),
		PoolsFile:         v.GetString("pools-file"),
		Pools:             getStringSlice(v, "pool"),
		StartBlock:        v.GetUint64("start-block"),
		EndBlock:          v.GetUint64("end-block"),
		MaxWorkUnits:      v.GetInt64("max-work-units"),
		BatchSize:         v.GetInt("batch-size"),
		Workers:           v.GetInt("workers"),
		TickInfo:          v.GetBool("tick-info"),
		Slot0:             v.GetBool("slot0"),
		Trades:            v.GetBool("trades"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
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
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
