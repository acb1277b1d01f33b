// pkg/config/rds.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// rdsKeys are the credential keys a source database file must define
var rdsKeys = []string{"RDS_HOST", "RDS_PASSWORD", "RDS_USER", "RDS_DATABASE", "RDS_PORT"}

// RDSCredentials holds the source database credentials read from YAML
type RDSCredentials struct {
	Host     string
	Password string
	User     string
	Database string
	Port     int
	SSLMode  string
}

// LoadRDSCredentials reads and validates a credentials file
func LoadRDSCredentials(path string) (*RDSCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return ParseRDSCredentials(data)
}

// ParseRDSCredentials parses YAML credentials. A missing key is an error naming the key.
func ParseRDSCredentials(data []byte) (*RDSCredentials, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	values := make(map[string]string, len(rdsKeys))
	for _, key := range rdsKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			return nil, fmt.Errorf("credentials missing required key %s", key)
		}
		values[key] = strings.TrimSpace(fmt.Sprint(v))
	}

	port, err := strconv.Atoi(values["RDS_PORT"])
	if err != nil {
		return nil, fmt.Errorf("invalid RDS_PORT %q: %w", values["RDS_PORT"], err)
	}

	creds := &RDSCredentials{
		Host:     values["RDS_HOST"],
		Password: values["RDS_PASSWORD"],
		User:     values["RDS_USER"],
		Database: values["RDS_DATABASE"],
		Port:     port,
		SSLMode:  "require",
	}
	if mode, ok := raw["RDS_SSLMODE"].(string); ok && mode != "" {
		creds.SSLMode = mode
	}

	return creds, nil
}

// ConnectionString returns a lib/pq connection string
func (c *RDSCredentials) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		quoteConnValue(c.Password),
		c.Database,
		c.SSLMode,
	)
}

// quoteConnValue quotes a keyword/value connection parameter when needed
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
