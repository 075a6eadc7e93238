// internal/config/database.go
package config

import (
	"fmt"
)

const applicationName = "idea-market-settlement"

// DSN pins the session to UTC so ledger timestamps compare across hosts.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d TimeZone=UTC application_name=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode, d.ConnectTimeout, applicationName,
	)
}
