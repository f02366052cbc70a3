package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"planchain/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress        string   `toml:"RPCAddress"`
	MetricsAddress    string   `toml:"MetricsAddress"`
	DataDir           string   `toml:"DataDir"`
	OwnerKeystorePath string   `toml:"OwnerKeystorePath"`
	RPCAuthTokenEnv   string   `toml:"RPCAuthTokenEnv"`
	DevFaucet         bool     `toml:"DevFaucet"`
	PausedModules     []string `toml:"PausedModules"`
	EventWindow       int      `toml:"EventWindow"`
	LogFilePath       string   `toml:"LogFilePath"`
	LogMaxSizeMB      int      `toml:"LogMaxSizeMB"`
	LogMaxBackups     int      `toml:"LogMaxBackups"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./plan-data"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}

	return cfg, nil
}

// AuthToken resolves the bearer token guarding mutating RPC methods. An empty
// result disables authentication, which is only sane alongside the dev faucet.
func (c *Config) AuthToken() string {
	if c.RPCAuthTokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RPCAuthTokenEnv))
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8080",
		MetricsAddress:    "",
		DataDir:           "./plan-data",
		OwnerKeystorePath: keystorePath,
		RPCAuthTokenEnv:   "PLAND_RPC_TOKEN",
		DevFaucet:         false,
		PausedModules:     []string{},
		EventWindow:       0,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}

// OwnerKey loads the registry owner's private key from the configured
// keystore.
func (c *Config) OwnerKey(passphrase string) (*crypto.PrivateKey, error) {
	if c.OwnerKeystorePath == "" {
		return nil, fmt.Errorf("config: owner keystore path not set")
	}
	return crypto.LoadFromKeystore(c.OwnerKeystorePath, passphrase)
}
