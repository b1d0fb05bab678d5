package bootstrap

import (
	"github.com/charmbracelet/log"

	"krampus/internal/config"
	"krampus/internal/database"
)

func Setup() {
	config.Load()

	if _, err := database.SetupDB(); err != nil {
		log.Fatalf("failed to set up database: %v", err)
	}

	count, err := database.CountUsers()
	if err != nil {
		log.Warn("Could not count users", "error", err)
		return
	}
	if count == 0 {
		log.Info("No users yet; the first registration becomes the admin")
	}
}
