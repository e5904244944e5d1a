// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥/令牌只存在 .env 文件或环境变量中（YAML 中不存储任何密码）。
//
// 配置路径确定策略：
//  1. --config 命令行参数（显式路径）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/golden-drift/
//     - dev/test → ./configs/
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig 统一 YAML 配置文件结构
type YAMLConfig struct {
	APIServer APIServerConfig `yaml:"api_server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Etcd      EtcdConfig      `yaml:"etcd"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Lock      LockConfig      `yaml:"lock"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Replay    ReplayConfig    `yaml:"replay"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Drift     DriftConfig     `yaml:"drift"`
}

// APIServerConfig API Server 配置
type APIServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "sqlite", or "mongodb"
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD / MONGO_ROOT_PASSWORD 读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI（优先于 host/port）
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

// EtcdConfig etcd 配置（lock.backend=etcd 时使用）
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

// MinIOConfig MinIO 对象存储配置
//
// Endpoint 为空时不归档回放对话。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// Enabled 是否配置了对象存储
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// LockConfig 按黄金测试 id 串行化比对、基线替换与设置修改的锁
//
// TTL 至少比 scheduler.replay_timeout 长一分钟，不足时自动调整。
type LockConfig struct {
	Backend string        `yaml:"backend"` // memory | redis | etcd
	TTL     time.Duration `yaml:"ttl"`
}

// AlertsConfig 告警事件总线配置
type AlertsConfig struct {
	Backend string `yaml:"backend"` // memory | redis | none
}

// ReplayConfig 外部回放服务
type ReplayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"-"` // 只从 REPLAY_TOKEN 环境变量读取
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Workers       int           `yaml:"workers"`
	ReplayTimeout time.Duration `yaml:"replay_timeout"`
	ReplayRate    float64       `yaml:"replay_rate"` // 每秒回放次数
}

// DriftConfig 比对默认值
type DriftConfig struct {
	Thresholds DriftThresholdsConfig `yaml:"thresholds"`
	Schedule   DriftScheduleConfig   `yaml:"schedule"`
}

type DriftThresholdsConfig struct {
	MinSemanticSimilarity float64 `yaml:"min_semantic_similarity"`
	MaxLatencyIncrease    float64 `yaml:"max_latency_increase"`
	MaxCostIncrease       float64 `yaml:"max_cost_increase"`
}

type DriftScheduleConfig struct {
	RunHour int `yaml:"run_hour"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres", "sqlite", or "mongodb"
	DatabaseURL    string
	DatabaseDBName string // MongoDB 数据库名称
	RedisURL       string
	APIPort        string
	Etcd           EtcdConfig
	MinIO          MinIOConfig
	Lock           LockConfig
	Alerts         AlertsConfig
	Replay         ReplayConfig
	Scheduler      SchedulerConfig
	Drift          DriftConfig
	ConfigFilePath string // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
