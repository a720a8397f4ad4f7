package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Blob-Store für Content-Blobs: "s3" oder "memory"
	BlobDriver string `envconfig:"BLOB_DRIVER" default:"s3"`
	S3Key      string `envconfig:"S3_KEY"`
	S3Secret   string `envconfig:"S3_SECRET"`
	S3URL      string `envconfig:"S3_URL"`
	S3Region   string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3Bucket   string `envconfig:"S3_BUCKET" default:"labshare-content"`

	// Suche: "solr" oder "database"
	SearchProvider string `envconfig:"SEARCH_PROVIDER" default:"database"`
	SolrURL        string `envconfig:"SOLR_URL" default:"http://localhost:8983/solr/labshare"`
	SearchLimit    int    `envconfig:"SEARCH_LIMIT" default:"100"`

	// Benachrichtigung der Gatekeeper: "log" oder "webhook"
	Notifier         string `envconfig:"NOTIFIER" default:"log"`
	NotifyWebhookURL string `envconfig:"NOTIFY_WEBHOOK_URL"`

	// Bei true bleibt die Sichtbarkeit bis zur Freigabe unverändert
	GatekeeperStrict bool `envconfig:"GATEKEEPER_STRICT" default:"false"`

	PendingLogCron string `envconfig:"PENDING_LOG_CRON" default:"*/15 * * * *"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Validate prüft Abhängigkeiten zwischen einzelnen Werten.
func (c *Config) Validate() error {
	switch c.BlobDriver {
	case "memory":
	case "s3":
		var missing []string
		if c.S3Key == "" {
			missing = append(missing, "S3_KEY")
		}
		if c.S3Secret == "" {
			missing = append(missing, "S3_SECRET")
		}
		if c.S3URL == "" {
			missing = append(missing, "S3_URL")
		}
		if len(missing) > 0 {
			return fmt.Errorf("blob driver s3 requires %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}
	switch c.SearchProvider {
	case "solr", "database":
	default:
		return fmt.Errorf("unknown SEARCH_PROVIDER %q", c.SearchProvider)
	}
	switch c.Notifier {
	case "log":
	case "webhook":
		if c.NotifyWebhookURL == "" {
			return fmt.Errorf("notifier webhook requires NOTIFY_WEBHOOK_URL")
		}
	default:
		return fmt.Errorf("unknown NOTIFIER %q", c.Notifier)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be positive")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
