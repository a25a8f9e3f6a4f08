package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Network names understood by the console
const (
	Devnet  = "devnet"
	Mainnet = "mainnet-beta"
)

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Log struct {
	File  string // empty = console only
	Level string // debug | info | warn | error
}

type Wallet struct {
	// KeypairPath points at a solana-keygen JSON file. When set the console
	// connects a local keypair wallet at startup instead of waiting for a
	// browser wallet on /ws.
	KeypairPath string
}

type Config struct {
	Network    string // active network name
	Networks   map[string]Network
	Commitment string // "processed" | "confirmed" | "finalized"

	API         API
	Log         Log
	Wallet      Wallet
	JournalPath string
}

func Default() Config {
	return Config{
		Network: Devnet,
		Networks: map[string]Network{
			Devnet:  DevnetNetwork("https://api.devnet.solana.com"),
			Mainnet: MainnetNetwork("https://api.mainnet-beta.solana.com"),
		},
		Commitment: "confirmed",
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Log:         Log{File: "data/console.log", Level: "info"},
		JournalPath: "data/journal",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if rpc := os.Getenv("DEVNET_RPC_URL"); rpc != "" {
		cfg.Networks[Devnet] = DevnetNetwork(rpc)
	}
	if rpc := os.Getenv("MAINNET_RPC_URL"); rpc != "" {
		cfg.Networks[Mainnet] = MainnetNetwork(rpc)
	}

	if network := os.Getenv("NETWORK"); network != "" {
		if _, ok := cfg.Networks[network]; ok {
			cfg.Network = network
		}
	}

	cfg.Commitment = getEnv("COMMITMENT", cfg.Commitment)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.JournalPath = getEnv("JOURNAL_PATH", cfg.JournalPath)
	cfg.Wallet.KeypairPath = os.Getenv("KEYPAIR_PATH")

	// Origins from comma-separated list
	// Example: "http://localhost:3000,https://desk.example.org"
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		var list []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				list = append(list, o)
			}
		}
		cfg.API.AllowedOrigins = list
	}

	return cfg
}

// ActiveNetwork returns the network selected by cfg.Network
func (c Config) ActiveNetwork() (Network, bool) {
	n, ok := c.Networks[c.Network]
	return n, ok
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
