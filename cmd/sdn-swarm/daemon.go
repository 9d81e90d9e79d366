package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spacedatanetwork/sdn-swarm/internal/bootstrap"
	"github.com/spacedatanetwork/sdn-swarm/internal/config"
	"github.com/spacedatanetwork/sdn-swarm/internal/discovery"
	"github.com/spacedatanetwork/sdn-swarm/internal/peers"
	"github.com/spacedatanetwork/sdn-swarm/internal/swarm"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Network.Listen = []string{listenAddr}
	}
	for _, w := range bootstrap.ValidateBootstrapConfig(cfg.Network.Bootstrap) {
		log.Warn(w)
	}

	// The gater is installed before the swarm exists and rejects everything
	// until it does.
	var current atomic.Pointer[swarm.Swarm]
	gater := peers.NewPolicyGater(peers.PolicyFunc(func(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
		sw := current.Load()
		if sw == nil {
			return false, swarm.ErrNotRunning
		}
		return sw.IsAllowed(ctx, addr)
	}), cfg.Swarm.Timeout())
	gater.SetBlockedCallback(func(addr multiaddr.Multiaddr, reason string) {
		log.Infof("Blocked connection %s (%s)", addr, reason)
	})

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(cfg.Network.Listen...),
		libp2p.ConnectionGater(gater),
	)
	if err != nil {
		return err
	}
	defer h.Close()

	var metrics *swarm.Metrics
	if cfg.Metrics.Enabled {
		metrics = swarm.NewMetrics("sdn", prometheus.DefaultRegisterer)
	}

	n, err := openNode(cfg, swarm.Options{
		Transport: swarm.NewHostTransport(h),
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	current.Store(n.swarm)

	log.Infof("Peer ID: %s", h.ID())
	for _, addr := range h.Addrs() {
		log.Infof("Listening on: %s", addr)
	}

	seed(ctx, n.cfg, n.swarm)

	disc := discovery.New(h, n.swarm, discovery.Config{
		Namespace: cfg.Discovery.Namespace,
		Interval:  cfg.Discovery.IntervalDuration(),
		MDNS:      cfg.Discovery.MDNS,
		DHT:       cfg.Discovery.DHT,
		PubSub:    cfg.Discovery.PubSub,
	})
	if err := disc.Start(ctx); err != nil {
		log.Warnf("Peer discovery unavailable: %v", err)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("Metrics available at http://%s/metrics", cfg.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warnf("Metrics server error: %v", err)
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	cancel()

	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		stop()
	}

	if err := disc.Close(); err != nil {
		log.Warnf("Discovery shutdown error: %v", err)
	}
	current.Store(nil)
	return n.close()
}

// seed registers the configured known peers and connects to the bootstrap
// peers in the background.
func seed(ctx context.Context, cfg *config.Config, sw *swarm.Swarm) {
	if len(cfg.Swarm.KnownPeers) > 0 {
		results := bootstrap.RegisterBootstrapPeers(ctx, sw, bootstrap.ParseBootstrapAddresses(cfg.Swarm.KnownPeers), 0)
		added := 0
		for _, r := range results {
			if r.Success {
				added++
			}
		}
		log.Infof("Registered %d of %d known peers", added, len(results))
	}

	infos := bootstrap.ParseBootstrapAddresses(cfg.Network.Bootstrap)
	if len(infos) == 0 {
		return
	}
	go func() {
		results := bootstrap.ConnectToBootstrapPeers(ctx, sw, infos, 0)
		connected := 0
		for _, r := range results {
			if r.Success {
				connected++
			}
		}
		log.Infof("Connected to %d of %d bootstrap peers", connected, len(results))
	}()
}
