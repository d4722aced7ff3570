package export

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 implements s3API with an in-memory object map.
type fakeS3 struct {
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = body
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func testPack() *Pack {
	return &Pack{
		PackID:      "pack-123",
		CompanyID:   "acme",
		GeneratedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Checksum:    "abc",
		Data:        []byte("zip-bytes"),
	}
}

func TestS3SinkKeyLayout(t *testing.T) {
	fake := newFakeS3()
	sink := &S3Sink{client: fake, bucket: "evidence", prefix: "packs/"}

	key, err := sink.Put(context.Background(), testPack())
	require.NoError(t, err)
	assert.Equal(t, "packs/acme/pack-123.zip", key)
	assert.Equal(t, []byte("zip-bytes"), fake.objects[key])

	sink.prefix = ""
	key2, err := sink.Put(context.Background(), testPack())
	require.NoError(t, err)
	assert.Equal(t, "acme/pack-123.zip", key2)
}

func TestS3SinkPutIsIdempotent(t *testing.T) {
	fake := newFakeS3()
	sink := &S3Sink{client: fake, bucket: "evidence"}

	key, err := sink.Put(context.Background(), testPack())
	require.NoError(t, err)

	// Same pack id again: existing object is left untouched.
	again, err := sink.Put(context.Background(), testPack())
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.Equal(t, 1, fake.puts)
}
