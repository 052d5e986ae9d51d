package alerting

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/auth"
)

// Connection reports broker connectivity; mqtt.Client satisfies it.
type Connection interface {
	IsConnectionOpen() bool
}

// WriteHealth reports the age of the last sink write error.
type WriteHealth interface {
	LastErrorAge() time.Duration
}

type HTTPDeps struct {
	Sweeper   Sweeper
	Bus       Connection  // nil when MQTT is disabled
	Sink      WriteHealth // nil when no sink is configured
	JWTSecret []byte
	// MinErrorAge is how long ago the last sink error must be for readiness.
	MinErrorAge time.Duration
}

// NewHTTPHandler mounts health, metrics and the admin sweep route.
func NewHTTPHandler(d HTTPDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", healthz(d))
	r.GET("/readyz", readyz(d))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin", auth.RequireAdmin(d.JWTSecret))
	admin.POST("/sweeps/:signal", runSweep(d.Sweeper))
	return r
}

type healthStatus struct {
	Status          string  `json:"status"`
	MQTTConnected   bool    `json:"mqtt_connected"`
	SinkOK          bool    `json:"sink_ok"`
	LastWriteErrorS float64 `json:"last_write_error_age_sec"`
}

func status(d HTTPDeps) healthStatus {
	st := healthStatus{MQTTConnected: d.Bus == nil || d.Bus.IsConnectionOpen(), SinkOK: true, LastWriteErrorS: -1}
	if d.Sink != nil {
		age := d.Sink.LastErrorAge()
		st.LastWriteErrorS = age.Seconds()
		st.SinkOK = age > d.MinErrorAge
	}
	switch {
	case st.MQTTConnected && st.SinkOK:
		st.Status = "ok"
	case st.MQTTConnected || st.SinkOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

func healthz(d HTTPDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, status(d))
	}
}

// readyz is 200 only when every dependency is ok.
func readyz(d HTTPDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ready := status(d).Status == "ok"
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"ready": ready})
	}
}

func runSweep(sw Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("signal")
		rep, err := sw.Run(c.Request.Context(), name)
		switch {
		case errors.Is(err, ErrUnknownSweep):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrSweepRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			// per-entity failures still produce a report
			c.JSON(http.StatusOK, gin.H{"report": rep, "error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"report": rep})
		}
	}
}
