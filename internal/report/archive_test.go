package report

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NomadCrew/release-gate/config"
)

type fakeObjectStore struct {
	existing map[string]bool
	puts     map[string][]byte
	putTypes map[string]string
	putErr   error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		existing: make(map[string]bool),
		puts:     make(map[string][]byte),
		putTypes: make(map[string]string),
	}
}

func (f *fakeObjectStore) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.existing[*in.Key] {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, errors.New("NotFound")
}

func (f *fakeObjectStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts[*in.Key] = body
	if in.ContentType != nil {
		f.putTypes[*in.Key] = *in.ContentType
	}
	f.existing[*in.Key] = true
	return &s3.PutObjectOutput{}, nil
}

func writeTempArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate-report.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestArchiveUploadsArtifact(t *testing.T) {
	store := newFakeObjectStore()
	archiver := NewArchiverWithClient(store, "gate-evidence", "reports")
	rpt := reportFixture()
	local := writeTempArtifact(t, "# Release Gate Report\n\nbody\n")

	key, err := archiver.Archive(context.Background(), local, rpt)
	require.NoError(t, err)

	wantKey := "reports/staging/" + ArtifactFilename(rpt)
	assert.Equal(t, wantKey, key)
	assert.Equal(t, []byte("# Release Gate Report\n\nbody\n"), store.puts[wantKey])
	assert.NotEmpty(t, store.putTypes[wantKey])
}

func TestArchiveSkipsExistingKey(t *testing.T) {
	store := newFakeObjectStore()
	rpt := reportFixture()
	key := "reports/staging/" + ArtifactFilename(rpt)
	store.existing[key] = true

	archiver := NewArchiverWithClient(store, "gate-evidence", "reports")
	local := writeTempArtifact(t, "new content that must not upload")

	got, err := archiver.Archive(context.Background(), local, rpt)
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Empty(t, store.puts)
}

func TestArchiveUploadFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.putErr = errors.New("connection reset")
	archiver := NewArchiverWithClient(store, "gate-evidence", "")
	local := writeTempArtifact(t, "content")

	_, err := archiver.Archive(context.Background(), local, reportFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to archive report")
}

func TestArchiveMissingLocalFile(t *testing.T) {
	archiver := NewArchiverWithClient(newFakeObjectStore(), "gate-evidence", "")

	_, err := archiver.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.md"), reportFixture())
	require.Error(t, err)
}

func TestNewArchiverDisabled(t *testing.T) {
	archiver, err := NewArchiver(context.Background(), config.ArchiveConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, archiver)
}
