package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"labshare/storage"
)

const backupPrefix = "labshare-backup-"

type BackupConfig struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	BackupBucket    string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint  string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion    string `envconfig:"BACKUP_S3_REGION" default:"eu-central-1"`
	KeepBackups     int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// backupObject ist ein vorhandenes Backup im Bucket.
type backupObject struct {
	Key          string
	LastModified time.Time
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starte Backup-Prozess...")
	_ = godotenv.Load()

	var cfg BackupConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}
	ctx := context.Background()

	// 1. Datenbank-Dump erstellen
	dumpData, err := createDump(ctx, cfg)
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des DB-Dumps", zap.Error(err))
	}

	// 2. S3-Client erstellen
	client, err := storage.NewS3ClientFor(ctx, cfg.BackupEndpoint, cfg.BackupRegion, cfg.BackupAccessKey, cfg.BackupSecretKey)
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}

	// 3. Backup nach S3 hochladen
	key := backupKey(time.Now())
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.BackupBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(dumpData),
	}); err != nil {
		logger.Fatal("Fehler beim Hochladen nach S3", zap.Error(err))
	}
	logger.Info("Backup hochgeladen",
		zap.String("bucket", cfg.BackupBucket), zap.String("key", key), zap.Int("bytes", len(dumpData)))

	// 4. Alte Backups rotieren
	if err := rotateBackups(ctx, client, cfg, logger); err != nil {
		logger.Fatal("Fehler bei der Rotation alter Backups", zap.Error(err))
	}

	logger.Info("Backup-Prozess erfolgreich abgeschlossen.")
}

func backupKey(now time.Time) string {
	return fmt.Sprintf("%s%s.sql.gz", backupPrefix, now.UTC().Format("2006-01-02T15-04-05Z"))
}

func createDump(ctx context.Context, cfg BackupConfig) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", strconv.Itoa(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort wird über PGPASSWORD bereitgestellt
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.DBPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// selectExpired liefert die Backups, die über die neuesten keep hinausgehen.
// Fremde Objekte im Bucket werden nie angefasst.
func selectExpired(objects []backupObject, keep int) []backupObject {
	var backups []backupObject
	for _, o := range objects {
		if strings.HasPrefix(o.Key, backupPrefix) {
			backups = append(backups, o)
		}
	}
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil
	}
	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].LastModified.After(backups[j].LastModified)
	})
	return backups[keep:]
}

func rotateBackups(ctx context.Context, client *s3.Client, cfg BackupConfig, logger *zap.Logger) error {
	var objects []backupObject
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.BackupBucket),
		Prefix: aws.String(backupPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			objects = append(objects, backupObject{Key: aws.ToString(obj.Key), LastModified: aws.ToTime(obj.LastModified)})
		}
	}

	expired := selectExpired(objects, cfg.KeepBackups)
	if len(expired) == 0 {
		logger.Info("Keine Rotation nötig", zap.Int("backups", len(objects)), zap.Int("keep", cfg.KeepBackups))
		return nil
	}
	for _, obj := range expired {
		logger.Info("Lösche altes Backup", zap.String("key", obj.Key))
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.BackupBucket),
			Key:    aws.String(obj.Key),
		}); err != nil {
			logger.Error("Fehler beim Löschen", zap.String("key", obj.Key), zap.Error(err))
		}
	}
	return nil
}
