package health

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Manager tracks readiness for the process. The exchange flips it on once the
// journal store, producer and consumer are wired, and off again at shutdown
// so the load balancer drains before connections drop.
type Manager struct {
	ready atomic.Bool
}

func NewManager(ready bool) *Manager {
	m := &Manager{}
	m.ready.Store(ready)
	return m
}

func (m *Manager) SetReady(ready bool) { m.ready.Store(ready) }

func (m *Manager) IsReady() bool { return m.ready.Load() }

// LivenessHandler always answers ok; liveness only means the process runs.
func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessHandler answers 503 until the manager is marked ready.
func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
