package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/send-governor/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// BucketHeader is the part of the S3 client used to probe the export bucket.
type BucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// HealthChecker probes the stores the governor depends on. The database is
// critical; Redis is critical only when it backs the quota counters.
type HealthChecker struct {
	db            *sql.DB
	redisClient   *redis.Client
	redisCritical bool
	s3Client      BucketHeader
	s3Bucket      string
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker. Any dependency can be nil; its
// check then reports "not_configured".
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, redisCritical bool, s3Client BucketHeader, s3Bucket string) *HealthChecker {
	return &HealthChecker{
		db:            db,
		redisClient:   redisClient,
		redisCritical: redisCritical,
		s3Client:      s3Client,
		s3Bucket:      s3Bucket,
		startTime:     time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth returns the status of every component. It always answers
// 200; use /health/ready for probes that need a 503.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  hc.overallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleReadiness returns 200 only when critical components are up.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := hc.overallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"s3", hc.checkS3(ctx)} }()

	checks := make(map[string]ComponentCheck, 3)
	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) overallStatus(checks map[string]ComponentCheck) string {
	critical := map[string]bool{"database": hc.db != nil, "redis": hc.redisCritical}
	overall := "healthy"
	for name, c := range checks {
		switch c.Status {
		case "down":
			if critical[name] {
				return "unhealthy"
			}
			overall = "degraded"
		case "degraded":
			overall = "degraded"
		}
	}
	return overall
}

func timed(threshold time.Duration, probe func() error) ComponentCheck {
	start := time.Now()
	err := probe()
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: err.Error()}
	}
	if latency > threshold {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return timed(time.Second, func() error {
		if err := hc.db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return timed(500*time.Millisecond, func() error {
		if err := hc.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

// checkS3 verifies the export bucket is reachable.
func (hc *HealthChecker) checkS3(ctx context.Context) ComponentCheck {
	if hc.s3Client == nil || hc.s3Bucket == "" {
		return ComponentCheck{Status: "not_configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return timed(2*time.Second, func() error {
		if _, err := hc.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &hc.s3Bucket}); err != nil {
			return fmt.Errorf("HeadBucket failed: %w", err)
		}
		return nil
	})
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
