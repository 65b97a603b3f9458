package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	JWTTTLHours        int
	RateLimitPerMinute int
	AllowedOrigins     []string
	FrontendURL        string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver         string
	DatabaseURI      string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBTimeoutSeconds int
	// Attendance scheduling
	Timezone              string
	TriggerWindowStart    string
	TriggerWindowEnd      string
	ResponseWindowSeconds int
	MaterializeCron       string
	TickCron              string
	JobTimeoutSeconds     int
	DefaultTargetGrades   []string
	DefaultPenaltyPoints  int
	// Notification transport: smtp, sendgrid or log
	NotifyDriver   string
	SendGridAPIKey string
	// SMTP for check-in notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Redis for scheduler leases and ranking cache; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Seeded administrator, created on first boot when no admin exists
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: .env (optional) -> config/config.json -> defaults -> environment variable overrides
	_ = godotenv.Load()

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)

	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Location resolves the configured timezone; scheduling decisions use this wall clock.
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, falling back to local: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

// ResponseWindow is how long users have to check in after a trigger fires.
func (c AppConfig) ResponseWindow() time.Duration {
	return time.Duration(c.ResponseWindowSeconds) * time.Second
}

// JobTimeout bounds a single scheduler job run.
func (c AppConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// DBTimeout bounds a single request-path store operation.
func (c AppConfig) DBTimeout() time.Duration {
	return time.Duration(c.DBTimeoutSeconds) * time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		if v := getInt(app, "JWTTTLHours"); v != 0 {
			out.JWTTTLHours = v
		}
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		if v := getString(app, "FrontendURL"); v != "" {
			out.FrontendURL = v
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		if v := getInt(dbs, "TimeoutSeconds"); v != 0 {
			out.DBTimeoutSeconds = v
		}
	}

	if at, ok := raw["attendance"].(map[string]any); ok {
		out.Timezone = getString(at, "Timezone")
		out.TriggerWindowStart = getString(at, "TriggerWindowStart")
		out.TriggerWindowEnd = getString(at, "TriggerWindowEnd")
		out.MaterializeCron = getString(at, "MaterializeCron")
		out.TickCron = getString(at, "TickCron")
		if v := getInt(at, "ResponseWindowSeconds"); v != 0 {
			out.ResponseWindowSeconds = v
		}
		if v := getInt(at, "JobTimeoutSeconds"); v != 0 {
			out.JobTimeoutSeconds = v
		}
		if v := getInt(at, "DefaultPenaltyPoints"); v != 0 {
			out.DefaultPenaltyPoints = v
		}
		if list := getStringSlice(at, "DefaultTargetGrades"); len(list) > 0 {
			out.DefaultTargetGrades = list
		}
	}

	if nt, ok := raw["notify"].(map[string]any); ok {
		out.NotifyDriver = getString(nt, "Driver")
		out.SendGridAPIKey = getString(nt, "SendGridAPIKey")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if sm, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(sm, "SMTPHost")
		if v := getInt(sm, "SMTPPort"); v != 0 {
			out.SMTPPort = v
		}
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getString(lg, "GinMode"); v != "" {
			out.GinMode = v
		}
		if v := getString(lg, "GinPath"); v != "" {
			out.GinPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}

	if adm, ok := raw["admin"].(map[string]any); ok {
		out.AdminUsername = getString(adm, "Username")
		out.AdminEmail = getString(adm, "Email")
		out.AdminPassword = getString(adm, "Password")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.JWTTTLHours == 0 {
		c.JWTTTLHours = 24 * 7
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:2111"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		} else {
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "labhub"
	}
	if c.DBTimeoutSeconds == 0 {
		c.DBTimeoutSeconds = 5
	}
	if c.TriggerWindowStart == "" {
		c.TriggerWindowStart = "21:15:00"
	}
	if c.TriggerWindowEnd == "" {
		c.TriggerWindowEnd = "21:25:59"
	}
	if c.ResponseWindowSeconds == 0 {
		c.ResponseWindowSeconds = 60
	}
	if c.MaterializeCron == "" {
		// must fire before TriggerWindowStart
		c.MaterializeCron = "0 21 * * *"
	}
	if c.TickCron == "" {
		c.TickCron = "* * * * *"
	}
	if c.JobTimeoutSeconds == 0 {
		c.JobTimeoutSeconds = 50
	}
	if len(c.DefaultTargetGrades) == 0 {
		c.DefaultTargetGrades = []string{"2024", "2025"}
	}
	if c.DefaultPenaltyPoints == 0 {
		c.DefaultPenaltyPoints = 5
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.SMTPFromName == "" {
		c.SMTPFromName = "实验室管理系统"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.AdminUsername == "" {
		c.AdminUsername = "admin"
	}
	if c.AdminEmail == "" {
		c.AdminEmail = "admin@robotlab.local"
	}
}

func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("JWT_TTL_HOURS", ""); v != "" {
		c.JWTTTLHours = mustParseInt(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("FRONTEND_URL", ""); v != "" {
		c.FrontendURL = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("DB_TIMEOUT_SECONDS", ""); v != "" {
		c.DBTimeoutSeconds = mustParseInt(v)
	}
	if v := getEnv("TZ_NAME", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnv("TRIGGER_WINDOW_START", ""); v != "" {
		c.TriggerWindowStart = v
	}
	if v := getEnv("TRIGGER_WINDOW_END", ""); v != "" {
		c.TriggerWindowEnd = v
	}
	if v := getEnv("RESPONSE_WINDOW_SECONDS", ""); v != "" {
		c.ResponseWindowSeconds = mustParseInt(v)
	}
	if v := getEnv("MATERIALIZE_CRON", ""); v != "" {
		c.MaterializeCron = v
	}
	if v := getEnv("TICK_CRON", ""); v != "" {
		c.TickCron = v
	}
	if v := getEnv("JOB_TIMEOUT_SECONDS", ""); v != "" {
		c.JobTimeoutSeconds = mustParseInt(v)
	}
	if v := getEnv("DEFAULT_TARGET_GRADES", ""); v != "" {
		c.DefaultTargetGrades = readListEnv("DEFAULT_TARGET_GRADES", c.DefaultTargetGrades)
	}
	if v := getEnv("DEFAULT_PENALTY_POINTS", ""); v != "" {
		c.DefaultPenaltyPoints = mustParseInt(v)
	}
	if v := getEnv("NOTIFY_DRIVER", ""); v != "" {
		c.NotifyDriver = v
	}
	if v := getEnv("SENDGRID_API_KEY", ""); v != "" {
		c.SendGridAPIKey = v
	}
	if v := getEnv("SMTP_HOST", ""); v != "" {
		c.SMTPHost = v
	}
	if v := getEnv("SMTP_PORT", ""); v != "" {
		c.SMTPPort = mustParseInt(v)
	}
	if v := getEnv("SMTP_USERNAME", ""); v != "" {
		c.SMTPUsername = v
	}
	if v := getEnv("SMTP_PASSWORD", ""); v != "" {
		c.SMTPPassword = v
	}
	if v := getEnv("SMTP_FROM", ""); v != "" {
		c.SMTPFrom = v
	}
	if v := getEnv("SMTP_FROM_NAME", ""); v != "" {
		c.SMTPFromName = v
	}
	if v := getEnv("SMTP_TLS", ""); v != "" {
		c.SMTPTLS = v == "true"
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("ADMIN_USERNAME", ""); v != "" {
		c.AdminUsername = v
	}
	if v := getEnv("ADMIN_EMAIL", ""); v != "" {
		c.AdminEmail = v
	}
	if v := getEnv("ADMIN_PASSWORD", ""); v != "" {
		c.AdminPassword = v
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
