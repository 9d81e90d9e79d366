// Package main provides the sdn-swarm command, which maintains the set of
// known peer addresses of a Space Data Network node and the policy deciding
// which of them may be used.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"

	"github.com/spacedatanetwork/sdn-swarm/internal/bootstrap"
	"github.com/spacedatanetwork/sdn-swarm/internal/config"
	"github.com/spacedatanetwork/sdn-swarm/internal/peers"
	"github.com/spacedatanetwork/sdn-swarm/internal/swarm"
)

var log = logging.Logger("sdn")

var rootCmd = &cobra.Command{
	Use:   "sdn-swarm",
	Short: "Space Data Network peer swarm",
	Long: `sdn-swarm keeps the registry of known peer addresses for a Space Data Network
node and applies the configured deny and allow lists to every registration,
connection and inbound dial.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logging.SetAllLoggers(logging.LevelDebug)
		} else {
			logging.SetAllLoggers(logging.LevelInfo)
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runInit,
}

var registerCmd = &cobra.Command{
	Use:   "register <multiaddr>...",
	Short: "Register peer addresses in the persisted registry",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRegister,
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List known peers grouped by peer ID",
	RunE:  runPeers,
}

var checkCmd = &cobra.Command{
	Use:   "check <multiaddr>...",
	Short: "Report whether addresses pass the configured policy",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a libp2p node gated by the swarm policy",
	RunE:  runDaemon,
}

var (
	configPath  string
	debug       bool
	concurrency int
	jsonOutput  bool
	showCID     bool
	listenAddr  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	registerCmd.Flags().IntVar(&concurrency, "concurrency", bootstrap.DefaultConcurrency, "parallel registrations")
	peersCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	peersCmd.Flags().BoolVar(&showCID, "cid", false, "print the CID form of each peer ID")
	daemonCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override listen address")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	log.Infof("Initialized swarm configuration at %s", path)
	return nil
}

// node bundles a started swarm with the store it was restored from.
type node struct {
	cfg   *config.Config
	swarm *swarm.Swarm
	store peers.PersistenceProvider
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openNode starts a swarm, restores the persisted registry and installs the
// configured lists. Configured lists take precedence over persisted ones.
func openNode(cfg *config.Config, opts swarm.Options) (*node, error) {
	deny, allow, err := peers.NewLists(cfg.Swarm.PolicyConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}

	store, err := peers.NewPersistence(cfg.Swarm.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	opts.StrictMode = cfg.Swarm.StrictMode
	sw := swarm.New(opts)
	sw.Start()

	if store != nil {
		snap, err := store.Load()
		if err != nil {
			closeStore(store)
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
		n, err := sw.Restore(snap)
		if err != nil {
			closeStore(store)
			return nil, err
		}
		log.Debugf("Restored %d addresses", n)
	}
	sw.SetDenyList(deny)
	sw.SetAllowList(allow)

	return &node{cfg: cfg, swarm: sw, store: store}, nil
}

// close persists the registry and stops the swarm.
func (n *node) close() error {
	var err error
	if n.store != nil {
		if serr := n.store.Save(n.swarm.Snapshot()); serr != nil {
			err = fmt.Errorf("failed to save registry: %w", serr)
		}
		closeStore(n.store)
	}
	n.swarm.Stop()
	return err
}

func closeStore(store peers.PersistenceProvider) {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warnf("Failed to close registry: %v", err)
		}
	}
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := openNode(cfg, swarm.Options{})
	if err != nil {
		return err
	}

	// Arguments that do not parse are reported in place.
	lines := make([]string, len(args))
	infos := make([]bootstrap.PeerInfo, 0, len(args))
	slots := make([]int, 0, len(args))
	for i, arg := range args {
		info, err := bootstrap.ParseBootstrapAddress(arg)
		if err != nil {
			lines[i] = fmt.Sprintf("error      %s: %v", arg, err)
			continue
		}
		infos = append(infos, info)
		slots = append(slots, i)
	}

	results := bootstrap.RegisterBootstrapPeers(cmd.Context(), n.swarm, infos, concurrency)
	for j, r := range results {
		switch {
		case r.Error != nil:
			lines[slots[j]] = fmt.Sprintf("error      %s: %v", r.Address, r.Error)
		case r.Success:
			lines[slots[j]] = fmt.Sprintf("registered %s", r.Address)
		default:
			lines[slots[j]] = fmt.Sprintf("skipped    %s", r.Address)
		}
	}

	out := cmd.OutOrStdout()
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	return n.close()
}

func runPeers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := openNode(cfg, swarm.Options{})
	if err != nil {
		return err
	}
	defer n.swarm.Stop()
	defer closeStore(n.store)

	known := n.swarm.KnownPeers()
	out := cmd.OutOrStdout()

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(known)
	}

	for _, p := range known {
		if showCID {
			fmt.Fprintf(out, "%s (%s)\n", p.ID, p.CID())
		} else {
			fmt.Fprintln(out, p.ID)
		}
		for _, addr := range p.Addrs {
			fmt.Fprintf(out, "  %s\n", addr)
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := openNode(cfg, swarm.Options{})
	if err != nil {
		return err
	}
	defer n.swarm.Stop()
	defer closeStore(n.store)

	ctx, cancel := context.WithTimeout(cmd.Context(), n.cfg.Swarm.Timeout())
	defer cancel()

	out := cmd.OutOrStdout()
	for _, s := range args {
		addr, err := peers.ParseAddress(s)
		if err != nil {
			fmt.Fprintf(out, "invalid  %s: %v\n", s, err)
			continue
		}
		allowed, err := n.swarm.IsAllowed(ctx, addr)
		if err != nil {
			return err
		}
		verdict := "denied"
		if allowed {
			verdict = "allowed"
		}
		if n.isKnown(addr) {
			verdict += ", known"
		}
		fmt.Fprintf(out, "%-15s %s\n", verdict, addr)
	}
	return nil
}

func (n *node) isKnown(addr multiaddr.Multiaddr) bool {
	for _, a := range n.swarm.KnownAddresses() {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}
