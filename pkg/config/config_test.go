package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: dbhost
  user: sto
  password: secret
ethereum:
  network: local
  node_url: http://localhost:8545
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dbhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, NetworkLocal, cfg.Ethereum.Network)
	assert.Equal(t, uint64(300000), cfg.Ethereum.GasLimit)
	assert.Equal(t, "1000000000", cfg.Ethereum.GasPrice)
	assert.Equal(t, 30*time.Second, cfg.Ethereum.RequestTimeout)
	assert.Equal(t, uint64(2000), cfg.Ethereum.ScanWindowSize)
	assert.True(t, cfg.Ethereum.AutoRestartNonce)
	assert.Equal(t, 18, cfg.Token.Decimals)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	path := writeConfig(t, `
ethereum:
  network: rinkeby
  node_url: http://localhost:8545
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network")
}

func TestLoadRejectsAmbiguousKeyConfig(t *testing.T) {
	path := writeConfig(t, `
ethereum:
  network: local
  node_url: http://localhost:8545
  private_key: abc
  private_key_encrypted: def
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoadRequiresMasterKeyForSealedKey(t *testing.T) {
	path := writeConfig(t, `
ethereum:
  network: local
  node_url: http://localhost:8545
  private_key_encrypted: def
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master_key")
}

func TestNetworkChainIDs(t *testing.T) {
	assert.Equal(t, int64(1), NetworkMainnet.ChainID())
	assert.Equal(t, int64(42), NetworkKovan.ChainID())
	assert.Equal(t, int64(3), NetworkRopsten.ChainID())
	assert.Equal(t, int64(1337), NetworkLocal.ChainID())

	assert.True(t, NetworkMainnet.Valid())
	assert.False(t, Network("rinkeby").Valid())
}
