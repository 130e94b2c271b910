// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/base58"
	"gopkg.in/yaml.v3"
)

// DefaultVaultProgramID 金库程序的链上地址
const DefaultVaultProgramID = "FDBF2QBZgTtpDXG77hmQPZzdDCkrSHtfgykj7SuxdRye"

// DefaultDomainTag 派生金库地址时使用的固定域标签
const DefaultDomainTag = "vault"

// Config 主配置结构
type Config struct {
	Program  ProgramConfig  `yaml:"program"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	TxPool   TxPoolConfig   `yaml:"txpool"`
	Stats    StatsConfig    `yaml:"stats"`
	Log      LogConfig      `yaml:"log"`
}

// ProgramConfig 程序身份配置
type ProgramConfig struct {
	VaultProgramID string `yaml:"vault_program_id"` // base58
	DomainTag      string `yaml:"domain_tag"`       // "vault"
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// BadgerDB配置
	Path             string `yaml:"path"`                // "./data"
	InMemory         bool   `yaml:"in_memory"`           // false
	ValueLogFileSize int64  `yaml:"value_log_file_size"` // 64 << 20 (64MB)
	SyncWrites       bool   `yaml:"sync_writes"`         // true
}

// CacheConfig 缓存配置
type CacheConfig struct {
	ReadCacheSize    int `yaml:"read_cache_size"`    // 4096
	ReceiptCacheSize int `yaml:"receipt_cache_size"` // 1024
}

// TxPoolConfig 交易池配置
type TxPoolConfig struct {
	Capacity  int `yaml:"capacity"`   // 10000
	BatchSize int `yaml:"batch_size"` // 256，每次出池执行的最大笔数
}

// StatsConfig 执行统计配置
type StatsConfig struct {
	LatencyWindow int `yaml:"latency_window"` // 1024，每种交易保留的耗时样本数
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // "info"
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Program: ProgramConfig{
			VaultProgramID: DefaultVaultProgramID,
			DomainTag:      DefaultDomainTag,
		},
		Database: DatabaseConfig{
			Path:             "./data",
			InMemory:         false,
			ValueLogFileSize: 64 << 20,
			SyncWrites:       true,
		},
		Cache: CacheConfig{
			ReadCacheSize:    4096,
			ReceiptCacheSize: 1024,
		},
		TxPool: TxPoolConfig{
			Capacity:  10000,
			BatchSize: 256,
		},
		Stats: StatsConfig{
			LatencyWindow: 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// TestConfig 内存数据库 + 默认程序身份，单元测试使用
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Database.InMemory = true
	cfg.Database.Path = ""
	cfg.Database.SyncWrites = false
	return cfg
}

// LoadFromFile 从 YAML 文件加载配置，未出现的字段保留默认值
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if n := len(base58.Decode(c.Program.VaultProgramID)); n != 32 {
		return fmt.Errorf("vault_program_id must decode to 32 bytes, got %d", n)
	}
	if c.Program.DomainTag == "" {
		return errors.New("domain_tag must not be empty")
	}
	if len(c.Program.DomainTag) > 32 {
		return fmt.Errorf("domain_tag longer than 32 bytes: %q", c.Program.DomainTag)
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return errors.New("database path required unless in_memory is set")
	}
	if c.Database.InMemory && c.Database.Path != "" {
		return errors.New("database path must be empty when in_memory is set")
	}
	if c.Database.ValueLogFileSize <= 0 {
		return fmt.Errorf("ValueLogFileSize must be positive")
	}
	if c.Cache.ReadCacheSize <= 0 || c.Cache.ReceiptCacheSize <= 0 {
		return fmt.Errorf("cache sizes must be positive")
	}
	if c.TxPool.Capacity <= 0 || c.TxPool.BatchSize <= 0 {
		return fmt.Errorf("txpool capacity and batch_size must be positive")
	}
	if c.Stats.LatencyWindow <= 0 {
		return fmt.Errorf("stats latency_window must be positive")
	}
	return nil
}
