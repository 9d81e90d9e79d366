package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Announcement is the message a node gossips with its own listen addresses.
type Announcement struct {
	ID    string    `json:"id"`
	Addrs []string  `json:"addrs"`
	At    time.Time `json:"at"`
}

// NewAnnouncement builds the announcement for id listening on addrs.
func NewAnnouncement(id peer.ID, addrs []multiaddr.Multiaddr) Announcement {
	a := Announcement{ID: id.String(), At: time.Now().UTC()}
	for _, addr := range addrs {
		a.Addrs = append(a.Addrs, addr.String())
	}
	return a
}

// DecodeAnnouncement parses data received from sender. The announced ID must
// match the sender; unparsable addresses are dropped.
func DecodeAnnouncement(data []byte, sender peer.ID) (peer.AddrInfo, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return peer.AddrInfo{}, fmt.Errorf("decode announcement: %w", err)
	}

	id, err := peer.Decode(a.ID)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("announced id: %w", err)
	}
	if id != sender {
		return peer.AddrInfo{}, fmt.Errorf("announcement for %s sent by %s", id, sender)
	}

	info := peer.AddrInfo{ID: id}
	for _, s := range a.Addrs {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			log.Debugf("Dropping announced address %q: %v", s, err)
			continue
		}
		// Announcements carry transport addresses only.
		transport, _ := peer.SplitAddr(addr)
		if transport != nil {
			info.Addrs = append(info.Addrs, transport)
		}
	}
	return info, nil
}

func (s *Service) announce(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		data, err := json.Marshal(NewAnnouncement(s.host.ID(), s.host.Addrs()))
		if err == nil {
			err = s.topic.Publish(ctx, data)
		}
		if err != nil && ctx.Err() == nil {
			log.Debugf("Announce failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) listen(ctx context.Context) {
	defer s.wg.Done()

	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				log.Warnf("Announcement subscription ended: %v", err)
			}
			return
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}

		info, err := DecodeAnnouncement(msg.Data, msg.GetFrom())
		if err != nil {
			log.Debugf("Ignoring announcement: %v", err)
			continue
		}
		s.found(ctx, info)
	}
}
