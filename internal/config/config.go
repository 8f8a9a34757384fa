package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Postgres PostgresConfig `mapstructure:"postgres"` // 数仓数据库配置
	S3       S3Config       `mapstructure:"s3"`       // Vizio数据桶配置
	Import   ImportConfig   `mapstructure:"import"`   // 导入引擎配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig 数仓数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// S3Config Vizio供应商数据桶配置
type S3Config struct {
	Bucket      string `mapstructure:"bucket"`       // 桶名
	Region      string `mapstructure:"region"`       // 区域
	AccessKey   string `mapstructure:"access_key"`   // 访问密钥
	SecretKey   string `mapstructure:"secret_key"`   // 私密密钥
	DownloadDir string `mapstructure:"download_dir"` // 本地下载根目录
}

// ImportConfig 导入引擎配置
type ImportConfig struct {
	ZipcodeRefPath  string `mapstructure:"zipcode_ref_path"`  // 邮编-时区参考表路径
	CallSignRefPath string `mapstructure:"callsign_ref_path"` // 台标参考表路径
	BatchSize       int    `mapstructure:"batch_size"`        // 批量入库单批行数
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)

	if cfg.Import.BatchSize <= 0 {
		cfg.Import.BatchSize = 2000
	}
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("VIZIO_S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("VIZIO_S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("VIZIO_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
}
