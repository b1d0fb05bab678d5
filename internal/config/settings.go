package config

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"krampus/internal/support"
)

const (
	defaultVoteThreshold = 3
	defaultJWTExpiry     = 24 * time.Hour
	defaultSyncBatchSize = 100
	defaultClientMode    = "LOCKDOWN"
)

type Config struct {
	// Governance
	VoteThreshold int

	// Auth
	JWTSecret string
	JWTExpiry time.Duration

	// Agent sync
	SyncBatchSize int
	ClientMode    string
}

var (
	mu        sync.RWMutex
	appConfig *Config
)

// Load reads the configuration from the environment. Values persist for the
// process lifetime; GetConfig returns the loaded snapshot.
func Load() *Config {
	cfg := &Config{
		VoteThreshold: support.GetEnvInt("VOTE_THRESHOLD", defaultVoteThreshold),
		JWTSecret:     support.GetEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpiry:     support.GetEnvDuration("JWT_EXPIRY", defaultJWTExpiry),
		SyncBatchSize: support.GetEnvInt("SYNC_BATCH_SIZE", defaultSyncBatchSize),
		ClientMode:    support.GetEnv("CLIENT_MODE", defaultClientMode),
	}

	if cfg.VoteThreshold < 1 {
		log.Warn("VOTE_THRESHOLD below 1, using default", "value", cfg.VoteThreshold)
		cfg.VoteThreshold = defaultVoteThreshold
	}
	if cfg.JWTSecret == "change-me-in-production" {
		log.Warn("Using default JWT secret, set JWT_SECRET in production")
	}

	mu.Lock()
	appConfig = cfg
	mu.Unlock()

	return cfg
}

func GetConfig() *Config {
	mu.RLock()
	cfg := appConfig
	mu.RUnlock()

	if cfg != nil {
		return cfg
	}
	return Load()
}

// SetForTests swaps the active configuration and returns a restore func.
func SetForTests(cfg *Config) func() {
	mu.Lock()
	previous := appConfig
	appConfig = cfg
	mu.Unlock()

	return func() {
		mu.Lock()
		appConfig = previous
		mu.Unlock()
	}
}
