package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

type fakeSource map[string][]string

func (f fakeSource) AllEmails(_ context.Context, workspaceID string) ([]string, error) {
	if workspaceID == "broken" {
		return nil, errors.New("db down")
	}
	return f[workspaceID], nil
}

func TestExportWorkspace(t *testing.T) {
	s3c := &fakeS3{}
	e := NewExporter(s3c, fakeSource{"w1": {"a@example.com", "b@example.com"}}, "bucket", "suppressions/", nil)
	e.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	snap, err := e.ExportWorkspace(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Count)

	raw, ok := s3c.objects["bucket/suppressions/w1/latest.json"]
	require.True(t, ok)
	var got Snapshot
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "w1", got.WorkspaceID)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got.Emails)
	assert.Equal(t, e.now(), got.GeneratedAt)
}

func TestExportWorkspace_EmptyListWritesEmptyArray(t *testing.T) {
	s3c := &fakeS3{}
	e := NewExporter(s3c, fakeSource{}, "bucket", "p/", nil)

	_, err := e.ExportWorkspace(context.Background(), "w2")
	require.NoError(t, err)
	assert.Contains(t, string(s3c.objects["bucket/p/w2/latest.json"]), `"emails":[]`)
}

func TestExportWorkspace_PutError(t *testing.T) {
	e := NewExporter(&fakeS3{err: errors.New("access denied")}, fakeSource{"w1": {"a@example.com"}}, "bucket", "p/", nil)

	_, err := e.ExportWorkspace(context.Background(), "w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket/p/w1/latest.json")
}

func TestExportAll_ContinuesPastFailures(t *testing.T) {
	s3c := &fakeS3{}
	e := NewExporter(s3c, fakeSource{"w1": {"a@example.com"}, "w2": {"b@example.com"}}, "bucket", "p/", []string{"w1", "broken", "w2"})

	assert.Equal(t, 1, e.ExportAll(context.Background()))
	assert.Len(t, s3c.objects, 2)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s3c := &fakeS3{}
	e := NewExporter(s3c, fakeSource{"w1": {"a@example.com"}}, "bucket", "p/", []string{"w1"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.Run(ctx, time.Hour)
		close(done)
	}()
	require.Eventually(t, func() bool {
		s3c.mu.Lock()
		defer s3c.mu.Unlock()
		return len(s3c.objects) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exporter did not stop")
	}
}
