package gateway

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// GatewayOption is the YAML configuration of a gateway. Values in default
// tags are applied by LoadOption when the key is absent.
type GatewayOption struct {
	Endpoint      string               `yaml:"endpoint" default:"/graphql"`
	ServiceName   string               `yaml:"service_name" default:"rpc-gateway"`
	Port          int                  `yaml:"port" default:"8080"`
	Debug         bool                 `yaml:"debug" default:"false"`
	Queues        []string             `yaml:"queues"`
	RPC           RPCSetting           `yaml:"rpc"`
	Opentelemetry OpentelemetrySetting `yaml:"opentelemetry"`
}

// RPCSetting bounds calls to services. Timeout "0s" waits for the reply as
// long as the request context lives.
type RPCSetting struct {
	Timeout          string `yaml:"timeout" default:"5s"`
	DiscoveryTimeout string `yaml:"discovery_timeout" default:"10s"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

const (
	defaultEndpoint         = "/graphql"
	defaultServiceName      = "rpc-gateway"
	defaultPort             = 8080
	defaultCallTimeout      = 5 * time.Second
	defaultDiscoveryTimeout = 10 * time.Second
)

// DefaultOption returns the configuration used for absent keys.
func DefaultOption() GatewayOption {
	return GatewayOption{
		Endpoint:    defaultEndpoint,
		ServiceName: defaultServiceName,
		Port:        defaultPort,
		RPC: RPCSetting{
			Timeout:          defaultCallTimeout.String(),
			DiscoveryTimeout: defaultDiscoveryTimeout.String(),
		},
	}
}

// LoadOption reads and validates the YAML file at path.
func LoadOption(path string) (GatewayOption, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return GatewayOption{}, fmt.Errorf("failed to read gateway config: %w", err)
	}
	return ParseOption(src)
}

// ParseOption decodes YAML, fills defaults and validates the result.
func ParseOption(src []byte) (GatewayOption, error) {
	opt := DefaultOption()
	if err := yaml.Unmarshal(src, &opt); err != nil {
		return GatewayOption{}, fmt.Errorf("failed to parse gateway config: %w", err)
	}
	opt.applyDefaults()

	if err := opt.Validate(); err != nil {
		return GatewayOption{}, err
	}
	return opt, nil
}

func (o *GatewayOption) applyDefaults() {
	if o.Endpoint == "" {
		o.Endpoint = defaultEndpoint
	}
	if o.ServiceName == "" {
		o.ServiceName = defaultServiceName
	}
	if o.Port == 0 {
		o.Port = defaultPort
	}
	if o.RPC.Timeout == "" {
		o.RPC.Timeout = defaultCallTimeout.String()
	}
	if o.RPC.DiscoveryTimeout == "" {
		o.RPC.DiscoveryTimeout = defaultDiscoveryTimeout.String()
	}
}

func (o GatewayOption) Validate() error {
	if len(o.Queues) == 0 {
		return fmt.Errorf("gateway config: at least one queue is required")
	}
	seen := make(map[string]bool, len(o.Queues))
	for _, q := range o.Queues {
		if q == "" {
			return fmt.Errorf("gateway config: empty queue name")
		}
		if seen[q] {
			return fmt.Errorf("gateway config: queue %q listed twice", q)
		}
		seen[q] = true
	}
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("gateway config: invalid port %d", o.Port)
	}
	if _, err := time.ParseDuration(o.RPC.Timeout); err != nil {
		return fmt.Errorf("gateway config: rpc.timeout: %w", err)
	}
	if _, err := time.ParseDuration(o.RPC.DiscoveryTimeout); err != nil {
		return fmt.Errorf("gateway config: rpc.discovery_timeout: %w", err)
	}
	return nil
}

// CallTimeout is the per-call RPC timeout. Zero disables it.
func (s RPCSetting) CallTimeout() time.Duration {
	return parseDuration(s.Timeout, defaultCallTimeout)
}

func (s RPCSetting) DiscoveryTimeoutDuration() time.Duration {
	return parseDuration(s.DiscoveryTimeout, defaultDiscoveryTimeout)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
