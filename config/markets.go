package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Market is a named scrape/mailing territory: one state plus the counties a
// campaign targets within it.
type Market struct {
	Name     string   `json:"name"`
	State    string   `json:"state"`
	Counties []string `json:"counties"`
}

// MarketConfig is the full markets configuration file.
type MarketConfig struct {
	Markets []Market `json:"markets"`
}

var (
	marketConfig *MarketConfig
	marketLock   sync.RWMutex
	marketPath   = "config/markets.json"
)

// LoadMarketConfig loads the markets configuration from file.
func LoadMarketConfig() error {
	marketLock.Lock()
	defer marketLock.Unlock()

	absPath, err := filepath.Abs(marketPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	var config MarketConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config: %v", err)
	}

	marketConfig = &config
	return nil
}

// SaveMarketConfig saves the current configuration to file.
func SaveMarketConfig() error {
	marketLock.Lock()
	defer marketLock.Unlock()

	if marketConfig == nil {
		return fmt.Errorf("no configuration loaded")
	}

	absPath, err := filepath.Abs(marketPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := json.MarshalIndent(marketConfig, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(absPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

// SetMarkets replaces the loaded configuration. Used by tests and the
// startup path when no config file exists yet.
func SetMarkets(markets []Market) {
	marketLock.Lock()
	defer marketLock.Unlock()
	marketConfig = &MarketConfig{Markets: markets}
}

// GetMarkets returns all configured markets.
func GetMarkets() []Market {
	marketLock.RLock()
	defer marketLock.RUnlock()

	if marketConfig == nil {
		return nil
	}

	markets := make([]Market, len(marketConfig.Markets))
	copy(markets, marketConfig.Markets)
	return markets
}

// GetMarketByName returns a specific market by name.
func GetMarketByName(name string) *Market {
	marketLock.RLock()
	defer marketLock.RUnlock()

	if marketConfig == nil {
		return nil
	}

	for _, m := range marketConfig.Markets {
		if m.Name == name {
			market := m
			return &market
		}
	}
	return nil
}
