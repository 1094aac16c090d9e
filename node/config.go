package node

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamgarcia4/goLearning/gossipfd/gossip"
	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

// Default configuration constants
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 50051
	DefaultName     = "process-1"
	DefaultCount    = 5
	DefaultDuration = 10 * time.Second
	maxPort         = 65535
)

// GossipSettings are the protocol knobs shared by every process of a simulation
type GossipSettings struct {
	TFail          time.Duration `yaml:"tfail"`
	TRemove        time.Duration `yaml:"tremove"`
	TGossip        time.Duration `yaml:"tgossip"`
	KList          int           `yaml:"klist"`
	Gossip         int           `yaml:"gossip"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	MaxPayloadSize int           `yaml:"max_payload_size"`
	JoinRetryTicks int           `yaml:"join_retry_ticks"`
	DropRate       float64       `yaml:"drop_rate"`
}

// DefaultGossipSettings returns the settings of the reference experiment
func DefaultGossipSettings() GossipSettings {
	return GossipSettings{
		TFail:          gossip.DefaultTFail,
		TRemove:        gossip.DefaultTRemove,
		TGossip:        gossip.DefaultTGossip,
		KList:          gossip.DefaultKList,
		Gossip:         gossip.DefaultGossip,
		PollTimeout:    transport.DefaultPollTimeout,
		MaxPayloadSize: gossip.DefaultMaxPayloadSize,
		JoinRetryTicks: gossip.DefaultJoinRetryTicks,
	}
}

// Config holds the configuration for one process
type Config struct {
	Name string
	Host string
	Port int

	// Introducer is host:port of the bootstrap process. Empty means this process is the introducer.
	Introducer string

	GossipSettings
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(name string) *Config {
	return &Config{
		Name:           name,
		Host:           DefaultHost,
		Port:           DefaultPort,
		GossipSettings: DefaultGossipSettings(),
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.Port <= 0 || c.Port > maxPort {
		return ErrInvalidPort
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return ErrInvalidDropRate
	}
	if c.Introducer != "" {
		if _, err := gossip.ParseEndPoint(c.Introducer); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIntroducer, err)
		}
	}
	_, err := c.DetectorConfig()
	return err
}

// GetAddress returns the full address (host:port)
func (c *Config) GetAddress() string {
	return c.EndPoint().String()
}

// EndPoint returns the process identity
func (c *Config) EndPoint() gossip.EndPoint {
	return gossip.NewEndPoint(c.Host, c.Port)
}

// DetectorConfig resolves the failure detector configuration
func (c *Config) DetectorConfig() (gossip.Config, error) {
	self := c.EndPoint()
	introducer := self
	if c.Introducer != "" {
		ep, err := gossip.ParseEndPoint(c.Introducer)
		if err != nil {
			return gossip.Config{}, fmt.Errorf("%w: %w", ErrInvalidIntroducer, err)
		}
		introducer = ep
	}

	cfg := gossip.Config{
		Self:           self,
		Introducer:     introducer,
		TFail:          c.TFail,
		TRemove:        c.TRemove,
		TGossip:        c.TGossip,
		KList:          c.KList,
		Gossip:         c.Gossip,
		MaxPayloadSize: c.MaxPayloadSize,
		JoinRetryTicks: c.JoinRetryTicks,
	}
	if err := cfg.Validate(); err != nil {
		return gossip.Config{}, err
	}
	return cfg, nil
}

// SimulationConfig describes a local multi-process experiment
type SimulationConfig struct {
	Count    int           `yaml:"count"`
	Host     string        `yaml:"host"`
	BasePort int           `yaml:"base_port"`
	Duration time.Duration `yaml:"duration"`

	// IntroducerIndex picks the introducer; negative picks one at random
	IntroducerIndex int `yaml:"introducer_index"`

	// FailIndex silences one process FailAfter into the run; negative disables
	FailIndex int           `yaml:"fail_index"`
	FailAfter time.Duration `yaml:"fail_after"`

	AdminAddr   string `yaml:"admin_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Gossip GossipSettings `yaml:"gossip"`
}

// DefaultSimulationConfig returns the reference experiment: 5 processes for 10 seconds
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		Count:           DefaultCount,
		Host:            DefaultHost,
		BasePort:        DefaultPort,
		Duration:        DefaultDuration,
		IntroducerIndex: -1,
		FailIndex:       -1,
		Gossip:          DefaultGossipSettings(),
	}
}

// LoadSimulationConfig reads a YAML file over the defaults
func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultSimulationConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if the config is valid
func (c *SimulationConfig) Validate() error {
	if c.Count < 1 {
		return ErrInvalidCount
	}
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.BasePort <= 0 || c.BasePort+c.Count-1 > maxPort {
		return ErrPortRangeExhausted
	}
	if c.Duration <= 0 {
		return ErrInvalidDuration
	}
	if c.IntroducerIndex >= c.Count {
		return ErrInvalidIntroducerIx
	}
	if c.FailIndex >= c.Count || (c.FailIndex >= 0 && c.FailIndex == c.IntroducerIndex) {
		return ErrInvalidFailIndex
	}
	// Validate the per-process settings through the first process config
	return c.processConfig(0, gossip.NewEndPoint(c.Host, c.BasePort)).Validate()
}

// processConfig builds the config of the i-th process
func (c *SimulationConfig) processConfig(i int, introducer gossip.EndPoint) *Config {
	cfg := DefaultConfig(fmt.Sprintf("process-%d", i+1))
	cfg.Host = c.Host
	cfg.Port = c.BasePort + i
	cfg.GossipSettings = c.Gossip
	if introducer != cfg.EndPoint() {
		cfg.Introducer = introducer.String()
	}
	return cfg
}
