package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"receipts/internal/blobstore"
)

// fakeAPI serves objects from a map and pages List results two at a time.
type fakeAPI struct {
	objects     map[string][]byte
	contentType map[string]string
	listCalls   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (f *fakeAPI) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.contentType[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.listCalls++
	keys := make([]string, 0)
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == aws.ToString(in.ContinuationToken) {
				start = i
				break
			}
		}
	}
	end := start + 2
	out := &awss3.ListObjectsV2Output{}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
		out.IsTruncated = aws.Bool(false)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	s := NewWithAPI(api, "receipts")

	if err := s.Put(ctx, "receipts/2024/02/a.jpg", []byte("img"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if api.contentType["receipts/2024/02/a.jpg"] != "image/jpeg" {
		t.Fatalf("content type not forwarded")
	}
	data, err := s.Get(ctx, "receipts/2024/02/a.jpg")
	if err != nil || string(data) != "img" {
		t.Fatalf("get: %q %v", data, err)
	}
	if err := s.Delete(ctx, "receipts/2024/02/a.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "receipts/2024/02/a.jpg"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	s := NewWithAPI(api, "receipts")
	for _, k := range []string{"p/1", "p/2", "p/3", "p/4", "p/5", "q/1"} {
		_ = s.Put(ctx, k, []byte("x"), "")
	}
	keys, err := s.List(ctx, "p/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 keys, got %v", keys)
	}
	if api.listCalls != 3 {
		t.Fatalf("expected 3 pages, got %d", api.listCalls)
	}
}

func TestPresignWithoutClient(t *testing.T) {
	s := NewWithAPI(newFakeAPI(), "receipts")
	if _, err := s.PresignGet(context.Background(), "k", 0); err == nil {
		t.Fatalf("expected error without presign client")
	}
}
