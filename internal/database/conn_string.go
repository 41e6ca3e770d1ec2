package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/kalshi-trade/internal/config"
)

// applicationName tags journal sessions in pg_stat_activity.
const applicationName = "kalshi-trade"

// BuildConnString builds a PostgreSQL URL from config. SSL mode defaults to
// prefer.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
