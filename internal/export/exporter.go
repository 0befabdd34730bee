// Package export publishes suppression list snapshots to S3 so ESP-side
// suppression lists can be synced from them.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/send-governor/internal/pkg/logger"
)

// ObjectPutter is the part of the S3 client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SuppressionSource lists every suppressed address of a workspace.
type SuppressionSource interface {
	AllEmails(ctx context.Context, workspaceID string) ([]string, error)
}

// Snapshot is the JSON document written for one workspace.
type Snapshot struct {
	WorkspaceID string    `json:"workspace_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Count       int       `json:"count"`
	Emails      []string  `json:"emails"`
}

// Exporter writes one snapshot object per workspace.
type Exporter struct {
	client     ObjectPutter
	source     SuppressionSource
	bucket     string
	prefix     string
	workspaces []string
	now        func() time.Time
}

// NewExporter creates an exporter over an existing S3 client.
func NewExporter(client ObjectPutter, source SuppressionSource, bucket, prefix string, workspaces []string) *Exporter {
	return &Exporter{
		client:     client,
		source:     source,
		bucket:     bucket,
		prefix:     prefix,
		workspaces: workspaces,
		now:        time.Now,
	}
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// An empty profile uses the environment or instance role.
func NewS3Client(ctx context.Context, region, profile string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for suppression export: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Key returns the object key of a workspace snapshot. The latest snapshot
// always overwrites the previous one.
func (e *Exporter) Key(workspaceID string) string {
	return fmt.Sprintf("%s%s/latest.json", e.prefix, workspaceID)
}

// ExportWorkspace writes the current suppression list of one workspace.
func (e *Exporter) ExportWorkspace(ctx context.Context, workspaceID string) (*Snapshot, error) {
	emails, err := e.source.AllEmails(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list suppressions for export: %w", err)
	}
	if emails == nil {
		emails = []string{}
	}
	snap := &Snapshot{
		WorkspaceID: workspaceID,
		GeneratedAt: e.now().UTC(),
		Count:       len(emails),
		Emails:      emails,
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshaling suppression snapshot: %w", err)
	}
	key := e.Key(workspaceID)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 PutObject %s/%s: %w", e.bucket, key, err)
	}
	return snap, nil
}

// ExportAll exports every configured workspace. A failing workspace is
// logged and does not stop the others; the number of failures is returned.
func (e *Exporter) ExportAll(ctx context.Context) int {
	failed := 0
	for _, ws := range e.workspaces {
		snap, err := e.ExportWorkspace(ctx, ws)
		if err != nil {
			failed++
			logger.Error("suppression export failed", "workspace_id", ws, "error", err)
			continue
		}
		logger.Info("suppression snapshot exported", "workspace_id", ws, "count", snap.Count, "key", e.Key(ws))
	}
	return failed
}

// Run exports immediately and then on every tick until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.ExportAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ExportAll(ctx)
		}
	}
}
