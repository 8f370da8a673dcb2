package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/pkg/chain/solana"
	"wallet-engine/pkg/types"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3, cfg.Broadcast.MaxRebuilds)
	assert.Equal(t, 60*time.Second, cfg.Broadcast.ReceiptTimeout)
	assert.Equal(t, 30, cfg.Broadcast.MaxPolls)
	assert.Equal(t, 10*time.Second, cfg.Broadcast.PollCap)
	assert.True(t, cfg.Policy.RejectSelfTransfer)
	assert.Equal(t, 60*time.Second, cfg.Policy.QuoteTTL)

	chains := cfg.EVMChains()
	require.Len(t, chains, 7)
	assert.Equal(t, types.ChainID("arbitrum"), chains[0].ID)

	var bsc bool
	for _, c := range chains {
		if c.ID == "bsc" {
			bsc = true
			assert.Equal(t, int64(56), c.ChainID)
			assert.Equal(t, "PancakeSwap", c.DEX)
			assert.Equal(t, uint8(18), c.Decimals)
		}
	}
	assert.True(t, bsc)

	sol := cfg.SolanaChain()
	assert.Equal(t, solana.DefaultJupiterURL, sol.JupiterURL)
	assert.Equal(t, solana.PublicFallbacks[0], sol.URLs()[0])
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: badger
  path: /tmp/engine-db
evm:
  chains:
    eth:
      rpc_url: https://rpc.example
    sepolia:
      name: Sepolia
      chain_id: 11155111
      rpc_url: https://sepolia.example
      symbol: ETH
solana:
  backup_urls: [https://backup.example]
  fallback_urls: []
`), 0o600))

	t.Setenv("WALLET_ENGINE_SOLANA_RPC_URL", "https://primary.example")
	t.Setenv("WALLET_ENGINE_BROADCAST_POLL_STEP", "250ms")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Store.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Broadcast.PollStep)

	var sepolia, eth bool
	for _, c := range cfg.EVMChains() {
		switch c.ID {
		case "sepolia":
			sepolia = true
			assert.Equal(t, int64(11155111), c.ChainID)
			assert.Equal(t, uint8(18), c.Decimals)
		case "eth":
			eth = true
			assert.Equal(t, "https://rpc.example", c.RPCURL)
			assert.Equal(t, "Uniswap V2", c.DEX)
		}
	}
	assert.True(t, sepolia)
	assert.True(t, eth)

	assert.Equal(t, []string{"https://primary.example", "https://backup.example"}, cfg.SolanaChain().URLs())
}

func TestValidate(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	bad := *cfg
	bad.Store.Driver = "postgres"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Solana.Commitment = "max"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.EVM.Chains = map[string]EVMChain{"x": {RPCURL: "https://x.example"}}
	assert.Error(t, bad.Validate())

	assert.Error(t, cfg.RequireOneClick())
	cfg.OneClick.JWTToken = "jwt"
	assert.NoError(t, cfg.RequireOneClick())
}
