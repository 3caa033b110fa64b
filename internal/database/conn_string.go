package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/candle-data/internal/config"
)

// BuildConnString assembles a postgres:// URL for pgx from a DBConfig.
// The password is URL-escaped so credentials with special characters work.
func BuildConnString(cfg config.DBConfig) string {
	password := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, password, cfg.Host, cfg.Port, cfg.Name, sslMode,
	)
}
