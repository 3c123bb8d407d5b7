package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := Unmarshal(New())
	require.NoError(t, err)

	assert.Equal(t, "100MiB", cfg.Buffer)
	assert.Equal(t, CompressionNone, cfg.Compression)
	assert.Equal(t, AlgorithmXZ, cfg.Algorithm)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 10000, cfg.MaxParts)
	assert.True(t, cfg.Preflight)
	assert.Equal(t, DriverS3, cfg.Driver)
	assert.Equal(t, DefaultRegion, cfg.Store.Region)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.Delay)
}

func TestNew_StoreEnvironment(t *testing.T) {
	t.Setenv(EnvEndpoint, "http://127.0.0.1:9000")
	t.Setenv(EnvRegion, "eu-west-3")
	t.Setenv(EnvAccessKey, "minio")
	t.Setenv(EnvSecretKey, "minio123")
	t.Setenv(EnvInsecure, "true")
	t.Setenv("OBJARCHIVER_COMPRESSION", "best")

	cfg, err := Unmarshal(New())
	require.NoError(t, err)

	assert.Equal(t, StoreConfig{
		Endpoint:  "http://127.0.0.1:9000",
		Region:    "eu-west-3",
		AccessKey: "minio",
		SecretKey: "minio123",
		PathStyle: true,
		Insecure:  true,
	}, cfg.Store)
	assert.Equal(t, CompressionBest, cfg.Compression)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "objarchiver.yaml")
	content := "src: s3://logs/app\ndst: s3://cold/app\nbuffer: 16MiB\nretry:\n  attempts: 2\n  delay: 1s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	v := New()
	require.NoError(t, Load(v, path))
	cfg, err := Unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, "s3://logs/app", cfg.Source)
	assert.Equal(t, "s3://cold/app", cfg.Destination)
	assert.Equal(t, "16MiB", cfg.Buffer)
	assert.Equal(t, 2, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, AlgorithmXZ, cfg.Algorithm)
}

func TestLoad_EnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("src: s3://from-env\n"), 0600))
	t.Setenv(EnvConfigPath, path)

	v := New()
	require.NoError(t, Load(v, ""))
	assert.Equal(t, "s3://from-env", v.GetString("src"))
}

func TestLoad_NoPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.NoError(t, Load(New(), ""))
}

func TestLoad_Missing(t *testing.T) {
	err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_WorldReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("src: s3://x\n"), 0644))
	require.NoError(t, os.Chmod(path, 0644))

	err := Load(New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world readable")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AWS_ACCESS_KEY=from-dotenv\n"), 0600))
	t.Setenv(EnvAccessKey, "")
	require.NoError(t, os.Unsetenv(EnvAccessKey))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv(EnvAccessKey))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "objarchiver.yaml")
	require.NoError(t, Write(Template("s3://a/logs", "s3://b/cold"), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	v := New()
	require.NoError(t, Load(v, path))
	cfg, err := Unmarshal(v)
	require.NoError(t, err)
	assert.Equal(t, "s3://a/logs", cfg.Source)
	assert.Equal(t, "30d", cfg.OlderThan)
	assert.Equal(t, CompressionFastest, cfg.Compression)

	_, err = Validate(cfg)
	assert.NoError(t, err)
}
