// Package discovery finds peers on the local network, through a DHT
// rendezvous and through gossiped announcements, and hands every address it
// learns to a registrar. Whether an address is kept is the registrar's
// decision.
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("sdn-discovery")

// DefaultNamespace is the mDNS service name, DHT rendezvous and topic prefix.
const DefaultNamespace = "sdn-swarm"

// DefaultInterval is how often the DHT is queried and announcements are sent.
const DefaultInterval = time.Minute

// Registrar receives discovered addresses.
type Registrar interface {
	RegisterPeer(ctx context.Context, addr multiaddr.Multiaddr) (bool, error)
}

// Config selects the discovery sources.
type Config struct {
	Namespace string
	Interval  time.Duration
	MDNS      bool
	DHT       bool
	PubSub    bool
}

// Service runs the configured discovery sources until closed.
type Service struct {
	host      host.Host
	registrar Registrar
	cfg       Config

	mdns  mdns.Service
	dht   *dht.IpfsDHT
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a discovery service for h. Nothing runs until Start.
func New(h host.Host, r Registrar, cfg Config) *Service {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Service{host: h, registrar: r, cfg: cfg}
}

// Start launches the enabled sources. The service stops when ctx is done or
// Close is called.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.MDNS {
		s.mdns = mdns.NewMdnsService(s.host, s.cfg.Namespace, &notifee{ctx: ctx, s: s})
		if err := s.mdns.Start(); err != nil {
			s.Close()
			return err
		}
		log.Infof("mDNS discovery started (%s)", s.cfg.Namespace)
	}

	if s.cfg.DHT {
		d, err := dht.New(ctx, s.host, dht.Mode(dht.ModeAuto))
		if err != nil {
			s.Close()
			return err
		}
		if err := d.Bootstrap(ctx); err != nil {
			_ = d.Close()
			s.Close()
			return err
		}
		s.dht = d
		s.wg.Add(1)
		go s.rendezvous(ctx)
		log.Infof("DHT rendezvous started (%s)", s.cfg.Namespace)
	}

	if s.cfg.PubSub {
		ps, err := pubsub.NewGossipSub(ctx, s.host)
		if err != nil {
			s.Close()
			return err
		}
		topic, err := ps.Join(s.cfg.Namespace + "/announce")
		if err != nil {
			s.Close()
			return err
		}
		sub, err := topic.Subscribe()
		if err != nil {
			_ = topic.Close()
			s.Close()
			return err
		}
		s.topic, s.sub = topic, sub
		s.wg.Add(2)
		go s.announce(ctx)
		go s.listen(ctx)
		log.Infof("Announcements started on %s", topic.String())
	}

	return nil
}

// Close stops every source and waits for them to exit.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		s.sub.Cancel()
	}
	s.wg.Wait()

	var errs []error
	if s.mdns != nil {
		errs = append(errs, s.mdns.Close())
		s.mdns = nil
	}
	if s.topic != nil {
		// Fails while the cancelled subscription is still being torn down;
		// the router drops the topic with the service context anyway.
		_ = s.topic.Close()
		s.topic, s.sub = nil, nil
	}
	if s.dht != nil {
		errs = append(errs, s.dht.Close())
		s.dht = nil
	}
	return errors.Join(errs...)
}

func (s *Service) found(ctx context.Context, info peer.AddrInfo) {
	if n := Register(ctx, s.registrar, s.host.ID(), info); n > 0 {
		log.Infof("Discovered %s (%d new addresses)", info.ID.ShortString(), n)
	}
}

func (s *Service) rendezvous(ctx context.Context) {
	defer s.wg.Done()

	rd := drouting.NewRoutingDiscovery(s.dht)
	dutil.Advertise(ctx, rd, s.cfg.Namespace)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		found, err := rd.FindPeers(ctx, s.cfg.Namespace)
		if err != nil {
			log.Debugf("Rendezvous lookup failed: %v", err)
		} else {
			for info := range found {
				s.found(ctx, info)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Register hands every address of info to r, skipping self. It returns the
// number of addresses r accepted.
func Register(ctx context.Context, r Registrar, self peer.ID, info peer.AddrInfo) int {
	if info.ID == self || info.ID == "" {
		return 0
	}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		log.Debugf("Cannot build addresses for %s: %v", info.ID, err)
		return 0
	}

	added := 0
	for _, addr := range addrs {
		ok, err := r.RegisterPeer(ctx, addr)
		if err != nil {
			log.Debugf("Register %s: %v", addr, err)
			return added
		}
		if ok {
			added++
		}
	}
	return added
}

// notifee adapts mDNS callbacks.
type notifee struct {
	ctx context.Context
	s   *Service
}

func (n *notifee) HandlePeerFound(info peer.AddrInfo) {
	n.s.found(n.ctx, info)
}
