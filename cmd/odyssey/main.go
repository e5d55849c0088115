// Package main is the odyssey node CLI entrypoint, grounded on
// cmd/XDC's subcommand layout (github.com/urfave/cli/v2): load config,
// generate a device identity, bind the listener, and accept
// connections.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/odyssey-sync/odyssey/config"
	"github.com/odyssey-sync/odyssey/identity"
	"github.com/odyssey-sync/odyssey/log"
	"github.com/odyssey-sync/odyssey/peer"
	"github.com/odyssey-sync/odyssey/storage"
	"github.com/odyssey-sync/odyssey/store"
	"github.com/odyssey-sync/odyssey/transport"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML configuration file",
}

var portFlag = &cli.UintFlag{
	Name:  "port",
	Usage: "override the configured listen port",
}

func main() {
	app := &cli.App{
		Name:  "odyssey",
		Usage: "run an Odyssey peer-to-peer CRDT replication node",
		Flags: []cli.Flag{configFlag, portFlag},
		Action: func(c *cli.Context) error {
			return runNode(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.IsSet(portFlag.Name) {
		cfg.Port = uint16(c.Uint(portFlag.Name))
	}

	logger := setupLogger(cfg)
	logger.Info("starting odyssey node", "port", cfg.Port)

	keys, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("cmd/odyssey: generate identity: %w", err)
	}
	logger.Info("generated device identity", "device_id", keys.DeviceId().String())

	var blobs storage.BlobStore
	if cfg.DataDir != "" {
		blobs, err = storage.OpenLevelDBBlobStore(cfg.DataDir, cfg.CacheSizeBytes)
		if err != nil {
			return fmt.Errorf("cmd/odyssey: open blob store: %w", err)
		}
		defer blobs.Close()
	}
	_ = blobs // wired into a BlobStore-backed ecg.DAG loader once store snapshotting lands

	registry := store.NewRegistry()
	peers := peer.NewManager()

	listener, err := transport.BindIPv4Loopback(cfg.Port, logger)
	if err != nil {
		return fmt.Errorf("cmd/odyssey: bind listener: %w", err)
	}
	defer listener.Close()

	go dialConfiguredPeers(cfg.Peers, keys, peers, logger)

	return acceptLoop(listener, keys, peers, registry, logger)
}

func setupLogger(cfg config.Config) *log.Logger {
	level := parseLevel(cfg.LogLevel)

	var writer io.Writer = os.Stderr
	if cfg.LogFile != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}

	log.SetOutput(writer, level)
	return log.Root()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "crit":
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

func acceptLoop(listener net.Listener, keys *identity.Keypair, peers *peer.Manager, registry *store.Registry, logger *log.Logger) error {
	logger.Info("accepting connections")
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Error("failed to accept connection", "err", err)
			continue
		}
		logger.Info("accepted connection", "remote", conn.RemoteAddr())
		go handleInbound(conn, keys, peers, logger)
	}
}

func handleInbound(conn net.Conn, keys *identity.Keypair, peers *peer.Manager, logger *log.Logger) {
	defer conn.Close()

	result, err := identity.HandshakeServer(conn, keys)
	if err != nil {
		if err == identity.ErrConnectingToSelf {
			logger.Info("disconnecting, attempting to connect to ourself")
			return
		}
		logger.Warn("handshake failed", "err", err)
		return
	}
	logger.Info("handshake complete with peer", "peer", result.PeerID.String())

	if _, won := peers.Initiate(result.PeerID, 16); !won {
		logger.Info("disconnecting, already connected to peer", "peer", result.PeerID.String())
		return
	}
	defer peers.Disconnect(result.PeerID)

	// No mini-protocol traffic (store sync sessions, peer discovery) is
	// dispatched on this connection: once the peer is registered the
	// function returns, which unregisters the peer and closes the
	// connection. Store sync sessions are started only by sending a
	// store.PeerWantsSync to a store's handler.
}

// dialConfiguredPeers dials the configured seed peers concurrently,
// bounding fan-out the way engine_v2's syncInfo gathers certificates
// from multiple masternodes at once. A failed dial only logs; it never
// aborts the other dials or the caller, since acceptLoop must keep
// running regardless of seed-peer reachability.
func dialConfiguredPeers(addrs []string, keys *identity.Keypair, peers *peer.Manager, logger *log.Logger) {
	var g errgroup.Group
	g.SetLimit(8)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			dialPeer(addr, keys, peers, logger)
			return nil
		})
	}
	g.Wait()
}

func dialPeer(addr string, keys *identity.Keypair, peers *peer.Manager, logger *log.Logger) {
	framed, err := transport.Dial(addr)
	if err != nil {
		logger.Warn("failed to connect to peer", "address", addr, "err", err)
		return
	}
	defer framed.Close()

	result, err := identity.HandshakeClient(framed, keys)
	if err != nil {
		if err == identity.ErrConnectingToSelf {
			logger.Info("disconnecting, attempting to connect to ourself")
			return
		}
		logger.Warn("handshake failed", "address", addr, "err", err)
		return
	}
	logger.Info("handshake complete with peer", "peer", result.PeerID.String())

	if _, won := peers.Initiate(result.PeerID, 16); !won {
		logger.Info("disconnecting, already connected to peer", "peer", result.PeerID.String())
		return
	}
	defer peers.Disconnect(result.PeerID)
}
