package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3001, cfg.HTTP.Port)
	assert.Equal(t, "public", cfg.Database.Schema)
	assert.True(t, cfg.Ingestion.AutoCreateLead)
	assert.Equal(t, "whatsapp", cfg.Ingestion.Origen)
	assert.Equal(t, 5, cfg.NATS.Inbound.MaxDeliver)
	assert.Equal(t, time.Second, cfg.NATS.Inbound.NakBaseDelay)
	assert.Equal(t, []string{"v1.inbound.whatsapp"}, cfg.NATS.Inbound.SubjectList)
}

func TestLoadConfigFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("logLevel: debug\ningestion:\n  ownerId: owner-from-file\nhttp:\n  inboundBurst: 7\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), yaml, 0o600))

	t.Setenv("POSTGRES_DSN", "postgres://u:p@db:5432/leads")
	t.Setenv("INGESTION_OWNER_ID", "owner-from-env")
	t.Setenv("DATABASE_SCHEMA", "crm")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.HTTP.InboundBurst)
	assert.Equal(t, "postgres://u:p@db:5432/leads", cfg.Database.PostgresDSN)
	assert.Equal(t, "owner-from-env", cfg.Ingestion.OwnerID)
	assert.Equal(t, "crm", cfg.Database.Schema)
}
