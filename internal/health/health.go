// Package health tracks the health of the daemon's components
package health

import (
	"sort"
	"sync"
	"time"
)

// Component names reported by the daemon
const (
	ComponentCapture    = "capture"
	ComponentSuppressor = "suppressor"
	ComponentPipeline   = "pipeline"
)

// Status values
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents overall system health
type Status struct {
	Status        string           `json:"status"` // ok, degraded, unhealthy
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
}

// Check represents a component health check
type Check struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Checker tracks health of system components.
// A failed critical component makes the whole daemon unhealthy; any other
// failure only degrades it.
type Checker struct {
	mu         sync.RWMutex
	version    string
	startTime  time.Time
	components map[string]Check
	critical   map[string]bool
}

// NewChecker creates a new health checker. The pipeline component is
// critical by default.
func NewChecker(version string) *Checker {
	return &Checker{
		version:    version,
		startTime:  time.Now(),
		components: make(map[string]Check),
		critical:   map[string]bool{ComponentPipeline: true},
	}
}

// SetCritical marks whether a failure of name makes the daemon unhealthy
func (c *Checker) SetCritical(name string, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.critical[name] = critical
}

// SetComponent updates a component's health status
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = Check{
		Healthy:   healthy,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// Component returns the last check recorded for name
func (c *Checker) Component(name string) (Check, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	check, ok := c.components[name]
	return check, ok
}

// Unhealthy returns the names of failing components, sorted
func (c *Checker) Unhealthy() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name, check := range c.components {
		if !check.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetStatus returns the overall health status
func (c *Checker) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusOK
	for name, check := range c.components {
		if check.Healthy {
			continue
		}
		if c.critical[name] {
			status = StatusUnhealthy
			break
		}
		status = StatusDegraded
	}

	// Copy components map
	components := make(map[string]Check)
	for k, v := range c.components {
		components[k] = v
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Components:    components,
	}
}

// IsHealthy returns true if all components are healthy
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, check := range c.components {
		if !check.Healthy {
			return false
		}
	}
	return true
}
