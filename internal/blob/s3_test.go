package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

type putCall struct {
	bucket, key, contentType string
	metadata                 map[string]string
	body                     string
}

type fakeS3 struct {
	calls []putCall
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		body:        string(body),
	})
	return &s3.PutObjectOutput{}, nil
}

func writeExport(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestUploadFile(t *testing.T) {
	api := &fakeS3{}
	u := NewUploader(api, "leads-bucket", "exports", zap.NewNop())
	path := writeExport(t, "contractors_fl_2plus.json", `[]`)

	up, err := u.UploadFile(context.Background(), u.Key("manual", path), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "exports/manual/contractors_fl_2plus.json", up.Key)
	assert.Equal(t, "s3://leads-bucket/exports/manual/contractors_fl_2plus.json", up.URI)
	assert.Equal(t, int64(2), up.Size)

	require.Len(t, api.calls, 1)
	assert.Equal(t, "leads-bucket", api.calls[0].bucket)
	assert.Equal(t, "application/json", api.calls[0].contentType)
	assert.Equal(t, "[]", api.calls[0].body)
}

func TestUploadFile_Errors(t *testing.T) {
	u := NewUploader(&fakeS3{err: errors.New("AccessDenied")}, "leads-bucket", "", zap.NewNop())

	_, err := u.UploadFile(context.Background(), "k", filepath.Join(t.TempDir(), "missing.csv"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob: open")

	_, err = u.UploadFile(context.Background(), "k", writeExport(t, "a.csv", "x"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob: put s3://leads-bucket/k")
}

func TestUploadExports(t *testing.T) {
	api := &fakeS3{}
	u := NewUploader(api, "leads-bucket", "exports", zap.NewNop())
	at := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	results := []pipelinedb.ExportResult{
		{ExportID: "e1", Format: "csv", Path: writeExport(t, "contractors_all.csv", "contractor_id\n"), Count: 0, ExportedAt: at},
		{ExportID: "e1", Format: "xlsx", Path: writeExport(t, "contractors_all.xlsx", "PK"), Count: 0, ExportedAt: at},
	}

	ups, err := u.UploadExports(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "exports/2026-03-02/e1/contractors_all.csv", ups[0].Key)
	assert.Equal(t, map[string]string{"export-id": "e1", "format": "xlsx", "count": "0"}, api.calls[1].metadata)
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket required")

	u, err := New(context.Background(), Config{
		Bucket:          "leads-bucket",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "leads-bucket", u.bucket)
}
