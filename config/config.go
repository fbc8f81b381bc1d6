// Package config loads the runtime's tunable knobs from YAML, per
// spec.md §6: HTTP client timeouts, conversation ack/msg timeouts,
// proxy-store reconnect behavior, and broker pending-ring sizing.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the runtime's full set of configurable knobs, per spec.md §6.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Conversation ConversationConfig `yaml:"conversation"`
	ProxyStore   ProxyStoreConfig   `yaml:"proxyStore"`
	Broker       BrokerConfig       `yaml:"broker"`
}

// HTTPConfig bounds the HTTP-backed collaborators spec.md §6 lists as
// external interfaces (eg the authorization service).
type HTTPConfig struct {
	TimeoutGet   time.Duration `yaml:"timeoutGet"`
	TimeoutOther time.Duration `yaml:"timeoutOther"`
}

// ConversationConfig mirrors conversation.Config's tunables.
type ConversationConfig struct {
	AckTimeout time.Duration `yaml:"ackTimeout"`
	MsgTimeout time.Duration `yaml:"msgTimeout"`
}

// ProxyStoreConfig mirrors the proxystore package's reconnect tunables.
type ProxyStoreConfig struct {
	ReconnectRetriesPerEndpoint int           `yaml:"reconnectRetriesPerEndpoint"`
	ReconnectRotations          int           `yaml:"reconnectRotations"`
	RetryBackoff                time.Duration `yaml:"retryBackoff"`
	CacheEnabled                bool          `yaml:"cacheEnabled"`
}

// BrokerConfig mirrors the broker backend's bounded-resource tunables.
type BrokerConfig struct {
	PendingRingCapacity int `yaml:"pendingRingCapacity"`
	MaxDeliveryAttempts int `yaml:"maxDeliveryAttempts"`
}

// Default returns spec.md §6's literal defaults.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			TimeoutGet:   1800 * time.Second,
			TimeoutOther: 1800 * time.Second,
		},
		Conversation: ConversationConfig{
			AckTimeout: 30 * time.Second,
			MsgTimeout: 300 * time.Second,
		},
		ProxyStore: ProxyStoreConfig{
			ReconnectRetriesPerEndpoint: 2,
			ReconnectRotations:          3,
			RetryBackoff:                500 * time.Millisecond,
			CacheEnabled:                false,
		},
		Broker: BrokerConfig{
			PendingRingCapacity: 32,
			MaxDeliveryAttempts: 5,
		},
	}
}

// Load reads path as YAML and overlays it onto Default(): any field the
// file omits keeps its default value.
func Load(path string) (Config, error) {
	var cfg = Default()

	var data, err = os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config file %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config file %q", path)
	}
	return cfg, nil
}
