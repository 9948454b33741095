package config // package config loads application configuration from environment variables

import (
    "errors"  // errors detects a missing .env file
    "fmt"     // fmt formats configuration errors
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings" // strings normalizes values

    "github.com/joho/godotenv" // godotenv loads .env files during development
)

const (
    EnvDevelopment = "development"
    EnvProduction  = "production"

    StoreMySQL  = "mysql"
    StoreMemory = "memory"

    DefaultAppEnv   = EnvProduction
    DefaultPort     = "8000"
    DefaultLogLevel = "info"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Sub-systems backed by Redis and RabbitMQ load
// their own settings (see LoadCacheConfig, LoadRateLimitConfig and
// LoadEventsConfig).
type Config struct {
    Env                   string // application environment (development/production)
    Port                  string // HTTP port to listen on
    LogLevel              string // logrus level name
    StoreDriver           string // mysql or memory
    DBUser                string // database username
    DBPass                string // database password (optional)
    DBHost                string // database host address
    DBPort                string // database port number
    DBName                string // database name
    DBAutoMigrate         bool   // create the userdata table on startup
    OptionalTrailingSlash bool   // accept /userdata and /userdata/ alike
}

// Load reads configuration values from environment variables and returns a
// Config.  In development a .env file in the working directory is loaded
// first; variables already set in the environment win.  All missing
// required variables are reported in a single error.
func Load() (Config, error) {
    appEnv := strings.ToLower(envStr("APP_ENV", DefaultAppEnv))
    if appEnv != EnvDevelopment && appEnv != EnvProduction {
        return Config{}, fmt.Errorf("invalid APP_ENV: must be %q or %q", EnvDevelopment, EnvProduction)
    }
    if appEnv == EnvDevelopment {
        if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
            return Config{}, fmt.Errorf("load .env: %w", err)
        }
    }

    cfg := Config{
        Env:                   appEnv,
        Port:                  envStr("APP_PORT", DefaultPort),
        LogLevel:              envStr("LOG_LEVEL", DefaultLogLevel),
        StoreDriver:           strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
        DBUser:                os.Getenv("DB_USER"),
        DBPass:                os.Getenv("DB_PASS"), // empty allowed
        DBHost:                os.Getenv("DB_HOST"),
        DBPort:                envStr("DB_PORT", "3306"),
        DBName:                os.Getenv("DB_NAME"),
        DBAutoMigrate:         envBool("DB_AUTO_MIGRATE", true),
        OptionalTrailingSlash: envBool("ROUTER_OPTIONAL_TRAILING_SLASH", true),
    }

    if _, err := strconv.Atoi(cfg.Port); err != nil {
        return Config{}, fmt.Errorf("invalid APP_PORT %q: %w", cfg.Port, err)
    }

    switch cfg.StoreDriver {
    case StoreMemory:
        return cfg, nil
    case StoreMySQL:
    default:
        return Config{}, fmt.Errorf("invalid STORE_DRIVER %q: must be %q or %q", cfg.StoreDriver, StoreMySQL, StoreMemory)
    }

    var missing []string
    for _, kv := range [][2]string{{"DB_USER", cfg.DBUser}, {"DB_HOST", cfg.DBHost}, {"DB_NAME", cfg.DBName}} {
        if kv[1] == "" {
            missing = append(missing, kv[0])
        }
    }
    if len(missing) > 0 {
        return Config{}, fmt.Errorf("missing required env var(s): %s", strings.Join(missing, ", "))
    }
    return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
    return c.Env == EnvDevelopment
}
