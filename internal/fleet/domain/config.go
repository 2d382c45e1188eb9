package fleet

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NetworkConfig is how the gateway reaches one shuttle.
type NetworkConfig struct {
	Host        string `yaml:"host"`
	CommandPort int    `yaml:"command_port"`
}

// Config describes the shuttle fleet and which shuttles serve which warehouse.
type Config struct {
	Shuttles        map[string]NetworkConfig `yaml:"shuttles"`
	StockToShuttles map[string][]string      `yaml:"stock_to_shuttles"`
}

// LoadConfig reads the fleet file. Every shuttle referenced by a warehouse
// mapping must have a network entry.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("fleet: config path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("fleet: parse %s: %w", path, err)
	}
	if len(cfg.Shuttles) == 0 {
		return cfg, errors.New("fleet: no shuttles configured")
	}
	for id, network := range cfg.Shuttles {
		if network.Host == "" {
			return cfg, fmt.Errorf("fleet: shuttle %s has no host", id)
		}
		if network.CommandPort == 0 {
			network.CommandPort = 2000
			cfg.Shuttles[id] = network
		}
	}
	for stock, ids := range cfg.StockToShuttles {
		for _, id := range ids {
			if _, ok := cfg.Shuttles[id]; !ok {
				return cfg, fmt.Errorf("fleet: warehouse %s references unknown shuttle %s", stock, id)
			}
		}
	}
	return cfg, nil
}

// ShuttlesForStock returns the shuttles mapped to a warehouse.
func (c Config) ShuttlesForStock(stock string) []string {
	return c.StockToShuttles[stock]
}

// MoveShuttle reassigns a shuttle to a new warehouse.
func (c *Config) MoveShuttle(shuttleID, newStock string) error {
	if _, ok := c.Shuttles[shuttleID]; !ok {
		return fmt.Errorf("fleet: unknown shuttle %s", shuttleID)
	}
	for stock, ids := range c.StockToShuttles {
		filtered := ids[:0]
		for _, id := range ids {
			if id != shuttleID {
				filtered = append(filtered, id)
			}
		}
		c.StockToShuttles[stock] = filtered
	}
	if c.StockToShuttles == nil {
		c.StockToShuttles = make(map[string][]string)
	}
	c.StockToShuttles[newStock] = append(c.StockToShuttles[newStock], shuttleID)
	return nil
}
