package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "time"     // time parses duration-valued settings
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for the
// booking lifecycle windows.
type Config struct {
    Env           string        // application environment (e.g. "dev", "prod")
    Port          string        // HTTP port to listen on
    DBUser        string        // database username
    DBPass        string        // database password (optional)
    DBHost        string        // database host address
    DBPort        string        // database port number
    DBName        string        // database name
    JWTSecret     string        // secret used to sign JWTs
    AccessTTLMin  int           // access token time-to-live in minutes
    BcryptCost    int           // bcrypt cost for password hashing
    SessionTTL    time.Duration // DRAFT booking-session time-to-live
    LockTTL       time.Duration // per-seat lock time-to-live while drafting
    PaymentWindow time.Duration // how long a checkout may take to settle
    SweepEvery    time.Duration // interval of the expired-lock sweeper

    PayBaseURL    string // payment gateway base URL
    PayMerchantID string // merchant identifier at the gateway
    PaySecret     string // shared HMAC secret for gateway signatures
    PayReturnURL  string // where the gateway redirects after payment
    PayCancelURL  string // where the gateway redirects on abort
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The lifecycle
// durations have defaults matching the product rules and only need to be
// set to override them.
func Load() Config {
    return Config{
        Env:           must("APP_ENV"),            // environment (dev/test/prod)
        Port:          must("APP_PORT"),           // port to bind the HTTP server
        DBUser:        must("DB_USER"),            // database user
        DBPass:        os.Getenv("DB_PASS"),       // database password (empty allowed)
        DBHost:        must("DB_HOST"),            // database host
        DBPort:        must("DB_PORT"),            // database port
        DBName:        must("DB_NAME"),            // database name
        JWTSecret:     must("JWT_SECRET"),         // secret used for signing JWTs
        AccessTTLMin:  mustInt("ACCESS_TOKEN_TTL_MIN"), // TTL for access tokens in minutes
        BcryptCost:    mustInt("BCRYPT_COST"),     // bcrypt cost factor
        SessionTTL:    dur("SESSION_TTL", 10*time.Minute),
        LockTTL:       dur("SEAT_LOCK_TTL", 3*time.Minute),
        PaymentWindow: dur("PAYMENT_WINDOW", 15*time.Minute),
        SweepEvery:    dur("LOCK_SWEEP_INTERVAL", time.Minute),
        PayBaseURL:    must("PAY_BASE_URL"),       // gateway endpoint
        PayMerchantID: must("PAY_MERCHANT_ID"),    // merchant id
        PaySecret:     must("PAY_SECRET"),         // HMAC secret
        PayReturnURL:  must("PAY_RETURN_URL"),     // success redirect target
        PayCancelURL:  must("PAY_CANCEL_URL"),     // abort redirect target
    }
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

// dur reads an optional duration variable ("3m", "90s") falling back to
// the given default.  An unparsable value is fatal rather than silently
// shortened or extended.
func dur(key string, def time.Duration) time.Duration {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    d, err := time.ParseDuration(s)
    if err != nil {
        log.Fatalf("invalid duration for %s: %q", key, s)
    }
    return d
}
