package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMissingFileUsesDefaults(t *testing.T) {
	require := require.New(t)
	c, err := Read(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(err)
	require.Equal(":9443", c.Conf.Addr)
	require.Equal(8640, c.Conf.DomainLimit)
	require.Equal(8, c.Conf.Workers)
}

func TestReadFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(os.WriteFile(path, []byte("conf:\n  domain: example.com\n  secureMode: true\n  workers: 2\n"), 0644))
	c, err := Read(path)
	require.NoError(err)
	require.Equal("example.com", c.Conf.Domain)
	require.True(c.Conf.SecureMode)
	require.Equal(2, c.Conf.Workers)
	// untouched keys keep their defaults
	require.Equal(":9443", c.Conf.Addr)
}

func TestEnvOverrides(t *testing.T) {
	require := require.New(t)
	t.Setenv("SORREL_DOMAIN", "env.example.com")
	t.Setenv("SORREL_WORKERS", "3")
	c, err := Read("")
	require.NoError(err)
	require.Equal("env.example.com", c.Conf.Domain)
	require.Equal(3, c.Conf.Workers)
}
