package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"planchain/config"
	"planchain/core"
	"planchain/crypto"
	"planchain/observability/logging"
	"planchain/rpc"
	"planchain/storage"
)

const ownerPassEnv = "PLAND_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	devFaucetFlag := flag.Bool("dev-faucet", false, "DEV ONLY: enable the account funding endpoint")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PLAND_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("pland", env, logging.Options{
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ownerKey, err := loadOwnerKey(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to load owner key: %v", err))
	}
	ownerAddr := ownerKey.PubKey().Address()

	devFaucet := cfg.DevFaucet || *devFaucetFlag

	var owner [20]byte
	copy(owner[:], ownerAddr.Bytes())
	node, err := core.NewNode(db, core.Config{
		RegistryOwner: owner,
		DevFaucet:     devFaucet,
		PausedModules: cfg.PausedModules,
		EventWindow:   cfg.EventWindow,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}

	authToken := cfg.AuthToken()
	if authToken == "" && !devFaucet {
		logger.Warn("RPC authentication disabled; mutating methods are open",
			slog.String("hint", "set RPCAuthTokenEnv in the config"))
	}

	rpcServer := rpc.NewServer(node, rpc.Options{AuthToken: authToken})
	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- rpcServer.Start(cfg.RPCAddress)
		close(rpcErrCh)
	}()

	if err := waitForRPCStartup(cfg.RPCAddress, rpcErrCh, 5*time.Second); err != nil {
		logger.Error("RPC server failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.MetricsAddress != "" && cfg.MetricsAddress != cfg.RPCAddress {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddress, rpcServer.Router()); err != nil {
				logger.Error("metrics listener terminated", slog.Any("error", err))
			}
		}()
	}

	logger.Info("marketplace node initialised and running",
		slog.String("owner", ownerAddr.String()),
		slog.String("rpc", cfg.RPCAddress),
		slog.Bool("devFaucet", devFaucet))

	if err, ok := <-rpcErrCh; ok && err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadOwnerKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	passphrase := os.Getenv(ownerPassEnv)
	key, err := cfg.OwnerKey(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", cfg.OwnerKeystorePath, err)
	}
	return key, nil
}

func waitForRPCStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if !ok {
				return fmt.Errorf("RPC server terminated before startup confirmation")
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("RPC server exited before startup confirmation")
		default:
		}

		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err, ok := <-errCh:
			if !ok {
				return fmt.Errorf("RPC server terminated before startup confirmation")
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("RPC server exited before startup confirmation")
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
