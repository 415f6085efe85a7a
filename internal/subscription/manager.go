// Package subscription polls Redis for operator-issued universe overrides
// between replay days, adapted from the order-book service's dynamic
// subscription manager. Instead of subscribing/unsubscribing a live feed,
// it hands the coordinator an updated instrument list to pick up on the
// next day boundary.
package subscription

import (
	"log"
	"time"
)

// UniverseReceiver accepts an updated instrument universe. The coordinator
// implements this to pick up overrides at the next day boundary.
type UniverseReceiver interface {
	SetUniverseOverride(codes []string)
}

// RedisConfigReader reads the configured universe from Redis.
type RedisConfigReader interface {
	GetTradingPairs(key string) ([]string, error)
}

// Manager polls Redis for universe overrides and forwards changes to a
// UniverseReceiver.
type Manager struct {
	receiver     UniverseReceiver
	redisClient  RedisConfigReader
	configKey    string
	pollInterval time.Duration
	stopChan     chan struct{}
	current      []string
}

// NewManager creates a universe-override poller.
func NewManager(receiver UniverseReceiver, redisClient RedisConfigReader, configKey string, pollInterval time.Duration) *Manager {
	return &Manager{
		receiver:     receiver,
		redisClient:  redisClient,
		configKey:    configKey,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
	}
}

// Start performs an initial sync and begins polling for changes.
func (m *Manager) Start() error {
	if err := m.sync(); err != nil {
		return err
	}
	go m.poll()
	return nil
}

// Stop halts polling.
func (m *Manager) Stop() {
	close(m.stopChan)
}

func (m *Manager) poll() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if err := m.sync(); err != nil {
				log.Printf("error syncing universe override: %v", err)
			}
		}
	}
}

func (m *Manager) sync() error {
	latest, err := m.redisClient.GetTradingPairs(m.configKey)
	if err != nil {
		log.Printf("failed to read universe override from Redis: %v", err)
		return err
	}

	if equalUniverse(latest, m.current) {
		return nil
	}

	log.Printf("universe override changed: %d instruments (was %d)", len(latest), len(m.current))
	m.current = latest
	m.receiver.SetUniverseOverride(latest)
	return nil
}

func equalUniverse(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(b))
	for _, x := range b {
		seen[x] = true
	}
	for _, x := range a {
		if !seen[x] {
			return false
		}
	}
	return true
}
