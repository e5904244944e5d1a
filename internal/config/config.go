package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 加载 .env.{env}（敏感信息）
//  2. 加载 {env}.yaml
//  3. 环境变量覆盖
//  4. 填充默认值
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg := loadYAMLConfig(env)
	return build(env, yamlCfg)
}

// build 由 YAML 配置与环境变量构建最终配置
func build(env Environment, yamlCfg *yamlConfigInternal) *Config {
	db := yamlCfg.Database
	db.Password = firstEnv("DB_PASSWORD", "MONGO_ROOT_PASSWORD")

	databaseURL := os.Getenv("DATABASE_URL")
	driver := detectDatabaseDriver(db.Driver, databaseURL)
	db.Driver = driver
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(db, db.Password)
	}

	redisCfg := yamlCfg.Redis
	redisCfg.Password = os.Getenv("REDIS_PASSWORD")
	redisURL := getEnv("REDIS_URL", buildRedisURL(redisCfg))

	minioCfg := yamlCfg.MinIO
	minioCfg.AccessKey = os.Getenv("MINIO_ROOT_USER")
	minioCfg.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")

	replayCfg := yamlCfg.Replay
	replayCfg.URL = getEnv("REPLAY_URL", replayCfg.URL)
	replayCfg.Token = os.Getenv("REPLAY_TOKEN")

	cfg := &Config{
		Env:            env,
		DatabaseDriver: driver,
		DatabaseURL:    databaseURL,
		DatabaseDBName: db.Name,
		RedisURL:       redisURL,
		APIPort:        getEnv("API_PORT", yamlCfg.APIServer.Port),
		Etcd:           yamlCfg.Etcd,
		MinIO:          minioCfg,
		Lock:           yamlCfg.Lock,
		Alerts:         yamlCfg.Alerts,
		Replay:         replayCfg,
		Scheduler:      yamlCfg.Scheduler,
		Drift:          yamlCfg.Drift,
		ConfigFilePath: yamlCfg.loadedFrom,
	}
	cfg.validate()
	return cfg
}

// defaultYAMLConfig 代码硬编码默认值
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		APIServer: APIServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "/var/lib/golden-drift/golden-drift.db",
			Host:    "localhost",
			Port:    5432,
			User:    "golden",
			Name:    "golden_drift",
			SSLMode: "disable",
		},
		Redis:  RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Etcd:   EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/golden-drift"},
		MinIO:  MinIOConfig{Bucket: "golden-drift"},
		Lock:   LockConfig{Backend: "memory", TTL: 5 * time.Minute},
		Alerts: AlertsConfig{Backend: "memory"},
		Replay: ReplayConfig{URL: "http://localhost:8090"},
		Scheduler: SchedulerConfig{
			Interval:      5 * time.Minute,
			Workers:       4,
			ReplayTimeout: 2 * time.Minute,
			ReplayRate:    2,
		},
		Drift: DriftConfig{
			Thresholds: DriftThresholdsConfig{
				MinSemanticSimilarity: 0.90,
				MaxLatencyIncrease:    0.20,
				MaxCostIncrease:       0.15,
			},
			Schedule: DriftScheduleConfig{RunHour: 3},
		},
	}
}

// loadYAMLConfig 加载 YAML 配置文件：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	path := findConfigFile(env)
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[Config] Failed to read %s: %v", path, err)
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
		log.Printf("[Config] Failed to parse %s: %v", path, err)
		return cfg
	}
	cfg.loadedFrom = path
	return cfg
}

// parseYAML 解析 YAML 内容（叠加在默认值之上）
func parseYAML(data []byte) (*yamlConfigInternal, error) {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}
	if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.APIPort == "" {
		c.APIPort = "8080"
	}
	c.Lock.Backend = strings.ToLower(c.Lock.Backend)
	switch c.Lock.Backend {
	case "memory", "redis", "etcd":
	default:
		c.Lock.Backend = "memory"
	}
	c.Alerts.Backend = strings.ToLower(c.Alerts.Backend)
	switch c.Alerts.Backend {
	case "memory", "redis", "none":
	default:
		c.Alerts.Backend = "memory"
	}
	if c.Lock.TTL <= 0 {
		c.Lock.TTL = 5 * time.Minute
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = "golden-drift"
	}
	c.Scheduler.validate()
	c.Drift.validate()
	// 锁在整个回放期间持有
	if c.Lock.TTL <= c.Scheduler.ReplayTimeout {
		c.Lock.TTL = c.Scheduler.ReplayTimeout + time.Minute
	}
}

// validate 填充调度器默认值
func (s *SchedulerConfig) validate() {
	if s.Interval <= 0 {
		s.Interval = 5 * time.Minute
	}
	if s.Workers <= 0 {
		s.Workers = 4
	}
	if s.ReplayTimeout <= 0 {
		s.ReplayTimeout = 2 * time.Minute
	}
	if s.ReplayRate <= 0 {
		s.ReplayRate = 2
	}
}

// validate 阈值越界时回退到默认值
func (d *DriftConfig) validate() {
	t := &d.Thresholds
	if t.MinSemanticSimilarity <= 0 || t.MinSemanticSimilarity > 1 {
		t.MinSemanticSimilarity = 0.90
	}
	if t.MaxLatencyIncrease <= 0 {
		t.MaxLatencyIncrease = 0.20
	}
	if t.MaxCostIncrease <= 0 {
		t.MaxCostIncrease = 0.15
	}
	if d.Schedule.RunHour < 0 || d.Schedule.RunHour > 23 {
		d.Schedule.RunHour = 3
	}
}
