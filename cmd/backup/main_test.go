package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectExpired(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	objects := []backupObject{
		{Key: backupKey(base), LastModified: base},
		{Key: backupKey(base.Add(72 * time.Hour)), LastModified: base.Add(72 * time.Hour)},
		{Key: "content_blobs/abc", LastModified: base.Add(-time.Hour)},
		{Key: backupKey(base.Add(24 * time.Hour)), LastModified: base.Add(24 * time.Hour)},
	}

	expired := selectExpired(objects, 1)
	assert.Equal(t, []backupObject{objects[3], objects[0]}, expired)

	assert.Nil(t, selectExpired(objects, 3))
	assert.Len(t, selectExpired(objects, -1), 3)
}

func TestBackupKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 13, 4, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "labshare-backup-2025-03-01T12-04-05Z.sql.gz", backupKey(at))
}
