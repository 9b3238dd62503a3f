package raft

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk node configuration, grounded on the teacher's
// raft-server/config.go Config/NodeConfig/ClusterConfig/PeerConfig shape
// and Validate rules, with a Tunables block added per SPEC_FULL.md §10.1
// for the timing/sizing knobs spec §6 leaves to the deployment.
type Config struct {
	Node     NodeConfig    `yaml:"node"`
	Cluster  ClusterConfig `yaml:"cluster"`
	Tunables Tunables      `yaml:"tunables"`
}

type NodeConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
	DataDir string `yaml:"data_dir"`
}

type ClusterConfig struct {
	Peers []PeerConfig `yaml:"peers"`

	// StoreID, when set, is shared verbatim across every node's config
	// at cluster-creation time so all members agree on which underlying
	// data store they belong to without any runtime coordination (spec
	// §7/SPEC_FULL.md §12.4's StoreId-mismatch-denies rule). Left at 0
	// for a single-node deployment or a config generated before the
	// operator has picked one; LoadConfig's caller then falls back to
	// FileStore's persisted store_id.bin, generated once on first boot.
	StoreID uint64 `yaml:"store_id"`
}

type PeerConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// Tunables are the spec §6 knobs: election timeout range, heartbeat
// interval, and the two LogShipper sizing parameters from spec §4.9.
type Tunables struct {
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	CatchupBatchSize   int           `yaml:"catchup_batch_size"`
	MaxShippingLag     int           `yaml:"max_shipping_lag"`
}

// DefaultTunables mirrors typical Raft deployments: a heartbeat well
// under the election timeout floor, and a shipping lag generous enough
// that a brief burst of writes doesn't trip back-pressure.
func DefaultTunables() Tunables {
	return Tunables{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		CatchupBatchSize:   64,
		MaxShippingLag:     1000,
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{Tunables: DefaultTunables()}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Node.ID == 0 {
		return fmt.Errorf("node.id must be greater than 0")
	}
	if c.Node.Address == "" {
		return fmt.Errorf("node.address is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	if len(c.Cluster.Peers) == 0 {
		return fmt.Errorf("cluster.peers must contain at least one peer")
	}

	found := false
	for _, peer := range c.Cluster.Peers {
		if peer.ID == c.Node.ID {
			found = true
			if peer.Address != c.Node.Address {
				return fmt.Errorf("node address mismatch: node.address=%s but peer address=%s",
					c.Node.Address, peer.Address)
			}
			break
		}
	}
	if !found {
		return fmt.Errorf("node.id=%d not found in cluster.peers", c.Node.ID)
	}

	uniqueIDs := make(map[uint64]bool)
	for _, peer := range c.Cluster.Peers {
		if uniqueIDs[peer.ID] {
			return fmt.Errorf("duplicate peer ID: %d", peer.ID)
		}
		uniqueIDs[peer.ID] = true
	}

	if c.Tunables.ElectionTimeoutMin <= 0 || c.Tunables.ElectionTimeoutMax <= c.Tunables.ElectionTimeoutMin {
		return fmt.Errorf("tunables.election_timeout_min/max must be positive and min < max")
	}
	if c.Tunables.HeartbeatInterval <= 0 || c.Tunables.HeartbeatInterval >= c.Tunables.ElectionTimeoutMin/2 {
		return fmt.Errorf("tunables.heartbeat_interval must be positive and less than half of election_timeout_min")
	}
	if c.Tunables.CatchupBatchSize <= 0 {
		return fmt.Errorf("tunables.catchup_batch_size must be positive")
	}
	if c.Tunables.MaxShippingLag <= 0 {
		return fmt.Errorf("tunables.max_shipping_lag must be positive")
	}

	return nil
}

func (c *Config) GetPeerAddresses() map[MemberId]string {
	res := make(map[MemberId]string, len(c.Cluster.Peers))
	for _, peer := range c.Cluster.Peers {
		res[MemberId(peer.ID)] = peer.Address
	}
	return res
}

func (c *Config) GetVotingMembers() []MemberId {
	ids := make([]MemberId, len(c.Cluster.Peers))
	for i, peer := range c.Cluster.Peers {
		ids[i] = MemberId(peer.ID)
	}
	return ids
}
