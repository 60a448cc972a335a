package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/model"
)

func testPackage() model.MonthlyPackage {
	return model.MonthlyPackage{
		ID:      "pkg-1",
		Scope:   model.AreaScope("Medford"),
		Month:   model.MustParseMonth("2025-03"),
		Role:    model.RoleFilterCloser,
		Version: 3,
	}
}

func TestPackageKey(t *testing.T) {
	assert.Equal(t, "packages/2025-03/area/Medford/Closer/v3.json", PackageKey(testPackage()))

	p := testPackage()
	p.Scope = model.AreaScope("North/East")
	assert.Equal(t, "packages/2025-03/area/North_East/Closer/v3.json", PackageKey(p))

	p.Scope = model.OrgScope()
	p.Role = model.RoleAll
	p.Version = 1
	assert.Equal(t, "packages/2025-03/organization/organization/All/v1.json", PackageKey(p))
}

func TestLocal_PutGet(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir)
	ctx := context.Background()

	key, err := PutPackage(ctx, s, testPackage())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "packages", "2025-03", "area", "Medford", "Closer", "v3.json"))
	require.NoError(t, err)

	b, err := s.Get(ctx, key)
	require.NoError(t, err)
	var got model.MonthlyPackage
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "pkg-1", got.ID)
	assert.Equal(t, 3, got.Version)
}

func TestLocal_GetMissing(t *testing.T) {
	_, err := NewLocal(t.TempDir()).Get(context.Background(), "nope.json")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3Store_PrefixesKeys(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := NewS3WithClient(fake, "bucket", "/snapshots/")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a/b.json", []byte(`{}`)))
	assert.Contains(t, fake.objects, "bucket/snapshots/a/b.json")

	b, err := s.Get(ctx, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))

	_, err = s.Get(ctx, "missing.json")
	assert.Error(t, err)
}

func TestS3Store_PutError(t *testing.T) {
	s := NewS3WithClient(&fakeS3{err: errors.New("denied")}, "bucket", "")
	err := s.Put(context.Background(), "k.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 put k.json")
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(ctx, Config{Driver: "local", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(ctx, Config{Driver: "local"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Driver: "s3"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Driver: "gcs"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}
