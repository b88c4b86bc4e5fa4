package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time parses durations for holds, locks and schedules
)

// Store drivers accepted in STORE_DRIVER.
const (
    StoreMySQL  = "mysql"
    StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must(); the
// rest fall back to defaults suitable for local development.
type Config struct {
    Env         string // application environment (e.g. "dev", "prod")
    Port        string // HTTP port to listen on
    StoreDriver string // "mysql" or "memory"
    DBUser      string // database username
    DBPass      string // database password (optional)
    DBHost      string // database host address
    DBPort      string // database port number
    DBName      string // database name
    DBMaxConns  int    // connection pool size
    DBMigrate   bool   // create missing tables at startup
    JWTSecret   string // secret used to verify JWTs issued by the identity service

    HoldTTL       time.Duration // how long a PENDING order keeps its tickets
    LockTimeout   time.Duration // upper bound on a transaction including row lock waits
    SweepSchedule string        // cron spec for the expiration reconciler
    SweepBatch    int           // expired orders handled per page
    SweepLease    time.Duration // Redis lease TTL so one instance sweeps at a time

    Gateway        string        // payment gateway: "mock" or "http"
    GatewayURL     string        // base URL of the hosted checkout API
    GatewayKey     string        // server key for the checkout API
    GatewayTimeout time.Duration // HTTP timeout for gateway calls
    PublicURL      string        // base URL used for mock payment pages

    RabbitURL        string // AMQP URL; empty disables the broker and logs notifications
    NotifyQueue      string // queue notifications are published to
    NotifyBuffer     int    // in-process buffer ahead of the sink
    NotifyWorkers    int    // goroutines draining the buffer
    NotifyConsumer   bool   // run the queue consumer in this process
    NotifyLogPath    string // file the consumer appends delivered notifications to
    DevTokenUserID   uint64 // when set in dev, print a token for this user at startup
}

// Load reads configuration values from environment variables and returns a
// Config.  Database settings are only required for the mysql driver;
// missing values cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:         envStr("APP_ENV", "dev"),
        Port:        envStr("APP_PORT", "8080"),
        StoreDriver: envStr("STORE_DRIVER", StoreMySQL),
        DBPass:      os.Getenv("DB_PASS"), // database password (empty allowed)
        DBMaxConns:  envInt("DB_MAX_CONNS", 25),
        DBMigrate:   envBool("DB_MIGRATE", false),
        JWTSecret:   must("JWT_SECRET"),

        HoldTTL:       envDur("HOLD_TTL", 15*time.Minute),
        LockTimeout:   envDur("LOCK_TIMEOUT", 5*time.Second),
        SweepSchedule: envStr("SWEEP_SCHEDULE", "@every 1m"),
        SweepBatch:    envInt("SWEEP_BATCH", 200),
        SweepLease:    envDur("SWEEP_LEASE", 50*time.Second),

        Gateway:        envStr("GATEWAY", "mock"),
        GatewayURL:     envStr("GATEWAY_URL", "https://app.sandbox.midtrans.com"),
        GatewayKey:     os.Getenv("GATEWAY_SERVER_KEY"),
        GatewayTimeout: envDur("GATEWAY_TIMEOUT", 10*time.Second),
        PublicURL:      envStr("PUBLIC_URL", "http://localhost:8080"),

        RabbitURL:      os.Getenv("RABBITMQ_URL"),
        NotifyQueue:    envStr("NOTIFY_QUEUE", "ticket.notifications"),
        NotifyBuffer:   envInt("NOTIFY_BUFFER", 1024),
        NotifyWorkers:  envInt("NOTIFY_WORKERS", 2),
        NotifyConsumer: envBool("NOTIFY_CONSUMER_ENABLED", false),
        NotifyLogPath:  envStr("NOTIFY_LOG_PATH", "logs/notifications.log"),
    }
    if cfg.StoreDriver == StoreMySQL {
        cfg.DBUser = must("DB_USER")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    } else if cfg.StoreDriver != StoreMemory {
        log.Fatalf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
    }
    if cfg.Gateway == "http" && cfg.GatewayKey == "" {
        log.Fatalf("missing required env var: GATEWAY_SERVER_KEY")
    }
    if v := os.Getenv("DEV_TOKEN_USER_ID"); v != "" {
        cfg.DevTokenUserID = uint64(mustInt("DEV_TOKEN_USER_ID"))
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
