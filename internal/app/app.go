package app

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"krampus/internal/app/bootstrap"
	"krampus/internal/app/server"
	"krampus/internal/app/version"
	"krampus/internal/config"
	"krampus/internal/governance"
	"krampus/internal/notify"
	"krampus/internal/support"
)

const defaultBackendPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	backendPortFlag := flag.Int("backend-port", defaultBackendPort, "Port for API server")
	flag.Parse()

	backendPort := resolvePort("BACKEND_PORT", *backendPortFlag)

	info := version.Get()
	log.Info("Starting krampus", "version", info.BuildVersion, "built", info.BuiltAt)

	bootstrap.Setup()

	engineOpts := []governance.EngineOption{}
	if redisClient, err := support.GetRedisClient(); err != nil {
		log.Warn("Redis unavailable, change notifications disabled", "error", err)
	} else {
		heartbeatCancel := support.LaunchInstanceHeartbeat(context.Background(), redisClient)
		defer heartbeatCancel()

		broadcaster := notify.NewBroadcaster(redisClient)
		engineOpts = append(engineOpts, governance.WithBroadcaster(broadcaster))
		go broadcaster.Listen(context.Background(), func(change notify.Change) {
			log.Debug("Change from peer instance", "entity", change.Entity,
				"action", change.Action, "identifier", change.Identifier)
		})
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
	}

	engine := governance.NewEngine(config.GetConfig().VoteThreshold, engineOpts...)

	return server.OpenRoutes(backendPort, engine)
}

func resolvePort(envKey string, fallback int) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return fallback
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return fallback
	}
	return port
}
