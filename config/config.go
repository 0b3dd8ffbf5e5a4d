package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Data     DataConfig     `mapstructure:"data"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// TickRateRPS/TickRateBurst bound combat calls per bot, REST and WS together.
	TickRateRPS   float64 `mapstructure:"tick_rate_rps"`
	TickRateBurst int     `mapstructure:"tick_rate_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminAllowIPs restricts /admin to these addresses. Empty allows all.
	AdminAllowIPs []string `mapstructure:"admin_allow_ips"`
}

// DataConfig locates the unit/ability tables.
type DataConfig struct {
	Dir            string        `mapstructure:"dir"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"` // 0 disables hot reload
}

// CombatConfig holds the decision engine constants.
type CombatConfig struct {
	ScanBase         float64       `mapstructure:"scan_base"`
	ScanPerUnit      float64       `mapstructure:"scan_per_unit"`
	LookupMargin     float64       `mapstructure:"lookup_margin"`
	ContinuityBonus  float64       `mapstructure:"continuity_bonus"`
	WeaponDelayBonus float64       `mapstructure:"weapon_delay_bonus"`
	DefaultStepSize  float64       `mapstructure:"default_step_size"`
	DefaultProfile   string        `mapstructure:"default_profile"`
	CooldownTTL      time.Duration `mapstructure:"cooldown_ttl"`
	RecentLimit      int           `mapstructure:"recent_limit"`
}

// JournalConfig controls the decision journal.
type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/rtsmicro.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_prefix", "rtsmicro:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.tick_rate_rps", 30)
	v.SetDefault("security.tick_rate_burst", 60)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.reload_interval", "0s")
	v.SetDefault("combat.scan_base", 15)
	v.SetDefault("combat.scan_per_unit", 0.1)
	v.SetDefault("combat.lookup_margin", 3)
	v.SetDefault("combat.continuity_bonus", 3)
	v.SetDefault("combat.weapon_delay_bonus", 1.5)
	v.SetDefault("combat.default_step_size", 2)
	v.SetDefault("combat.cooldown_ttl", "10m")
	v.SetDefault("combat.recent_limit", 100)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.retention", "72h")
	v.SetDefault("journal.prune_interval", "1h")
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", "2s")
}
