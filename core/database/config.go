package database

const (
	// DriverSQLite stores everything in a single local file.
	DriverSQLite = "sqlite"
	// DriverPostgres connects to a PostgreSQL server.
	DriverPostgres = "postgres"
)

// Config holds database connection settings.
// Path is used by the sqlite driver, the remaining fields by postgres.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}
