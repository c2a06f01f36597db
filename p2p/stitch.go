package p2p

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dag-stitch/logger"
	"dag-stitch/models"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

// Config holds P2P transport configuration
type Config struct {
	Port           int
	BootstrapPeers []string
	Topic          string
}

// Node is a libp2p host joined to the stitch gossip topic
type Node struct {
	host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
}

// Setup starts the host, dials bootstrap peers and joins the topic.
// ctx bounds the lifetime of the gossip router.
func Setup(ctx context.Context, cfg Config) (*Node, error) {
	if cfg.Topic == "" {
		cfg.Topic = "dag-stitch/1.0.0"
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	for _, addr := range cfg.BootstrapPeers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			logger.Logger.Warn("Invalid bootstrap peer", zap.String("addr", addr), zap.Error(err))
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			logger.Logger.Warn("Bootstrap peer unreachable", zap.String("peer", info.ID.String()), zap.Error(err))
		}
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to start gossipsub: %w", err)
	}
	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to join topic %s: %w", cfg.Topic, err)
	}

	logger.Logger.Info("P2P transport ready",
		zap.String("peer_id", h.ID().String()),
		zap.Int("port", cfg.Port),
		zap.String("topic", cfg.Topic),
		zap.Int("peers", len(h.Network().Peers())))

	return &Node{host: h, ps: ps, topic: topic}, nil
}

// ID returns the local peer id
func (n *Node) ID() string {
	return n.host.ID().String()
}

// BroadcastStitch signs a stitch request for the given fracture and publishes it to the topic
func (n *Node) BroadcastStitch(ctx context.Context, weakID string, tips []string, reward uint64, key crypto.PrivKey) (*models.StitchRequest, error) {
	req := &models.StitchRequest{
		ID:        uuid.NewString(),
		WeakBlock: weakID,
		Tips:      append([]string(nil), tips...),
		Reward:    reward,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := SignStitch(req, key); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := n.topic.Publish(ctx, data); err != nil {
		return nil, fmt.Errorf("publish stitch request: %w", err)
	}
	logger.Logger.Debug("Stitch request published",
		zap.String("stitch_id", req.ID),
		zap.Int("topic_peers", n.TopicPeers()))
	return req, nil
}

// TopicPeers returns how many peers the gossip router currently sees on the stitch topic
func (n *Node) TopicPeers() int {
	return len(n.ps.ListPeers(n.topic.String()))
}

// Close leaves the topic and shuts down the host
func (n *Node) Close() error {
	return errors.Join(n.topic.Close(), n.host.Close())
}

// SignStitch fills in the signer public key and signature
func SignStitch(req *models.StitchRequest, key crypto.PrivKey) error {
	pub, err := crypto.MarshalPublicKey(key.GetPublic())
	if err != nil {
		return err
	}
	req.PublicKey = hex.EncodeToString(pub)

	payload, err := req.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := key.Sign(payload)
	if err != nil {
		return fmt.Errorf("sign stitch request: %w", err)
	}
	req.Signature = hex.EncodeToString(sig)
	return nil
}

// VerifyStitch checks the signature against the embedded public key
func VerifyStitch(req *models.StitchRequest) (bool, error) {
	pubRaw, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		return false, err
	}
	pub, err := crypto.UnmarshalPublicKey(pubRaw)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		return false, err
	}
	payload, err := req.SigningBytes()
	if err != nil {
		return false, err
	}
	return pub.Verify(payload, sig)
}
