package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory bucket. It serves list results in pages of
// pageSize keys, in reverse order, to exercise pagination and sorting.
type fakeS3 struct {
	objects  map[string][]byte
	pageSize int
	failWith error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		for i, k := range keys {
			if k == tok {
				start = i
			}
		}
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3Storage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*S3Storage)(nil)
}

func TestS3Storage_Key(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "file.txt", "file.txt"},
		{"", "/file.txt", "file.txt"},
		{"archive", "file.txt", "archive/file.txt"},
		{"archive/", "file.txt", "archive/file.txt"},
		{"/archive/", "bars/stocks/A/2024.parquet", "archive/bars/stocks/A/2024.parquet"},
	}

	for _, tt := range tests {
		s := newS3Storage(nil, "b", tt.prefix)
		if got := s.key(tt.path); got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
		if got := s.relative(s.key(tt.path)); got != strings.TrimPrefix(tt.path, "/") {
			t.Errorf("relative(key(%q)) = %q", tt.path, got)
		}
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(S3Config{Region: "us-east-1"}); err == nil {
		t.Error("expected error without bucket")
	}
	s, err := NewS3(S3Config{Bucket: "b", Region: "us-east-1", Endpoint: "http://localhost:9000", Prefix: "quant/"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.bucket != "b" || s.prefix != "quant" {
		t.Errorf("unexpected bucket/prefix %q/%q", s.bucket, s.prefix)
	}
}

func TestS3Storage_ReadWrite(t *testing.T) {
	fake := newFakeS3()
	s := newS3Storage(fake, "b", "quant")
	ctx := context.Background()

	if err := s.Write(ctx, "state/momentum.json", []byte(`{}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok := fake.objects["quant/state/momentum.json"]; !ok {
		t.Errorf("object not stored under prefix: %v", fake.objects)
	}

	got, err := s.Read(ctx, "state/momentum.json")
	if err != nil || string(got) != `{}` {
		t.Errorf("Read = %q, %v", got, err)
	}

	if _, err := s.Read(ctx, "state/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	ok, err := s.Exists(ctx, "state/momentum.json")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "state/momentum.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = s.Exists(ctx, "state/momentum.json")
	if err != nil || ok {
		t.Errorf("Exists after delete = %v, %v", ok, err)
	}
}

func TestS3Storage_ListSortedAcrossPages(t *testing.T) {
	fake := newFakeS3()
	s := newS3Storage(fake, "b", "quant")
	ctx := context.Background()

	for _, p := range []string{"bars/stocks/B/2024.parquet", "bars/stocks/A/2023.parquet", "bars/stocks/A/2024.parquet", "bars/stocks/AB/2024.parquet", "state/x.json"} {
		if err := s.Write(ctx, p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(ctx, "bars/stocks/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := "bars/stocks/A/2023.parquet,bars/stocks/A/2024.parquet,bars/stocks/AB/2024.parquet,bars/stocks/B/2024.parquet"
	if strings.Join(got, ",") != want {
		t.Errorf("List = %v", got)
	}

	got, err = s.List(ctx, "bars/stocks/A/")
	if err != nil || len(got) != 2 {
		t.Errorf("List(A/) = %v, %v", got, err)
	}
}

func TestS3Storage_ClientErrors(t *testing.T) {
	fake := newFakeS3()
	fake.failWith = errors.New("connection refused")
	s := newS3Storage(fake, "b", "")
	ctx := context.Background()

	if err := s.Write(ctx, "a", nil); err == nil || !strings.Contains(err.Error(), "put a") {
		t.Errorf("Write error = %v", err)
	}
	if _, err := s.Read(ctx, "a"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Read error = %v, want a non-ErrNotFound failure", err)
	}
	if _, err := s.Exists(ctx, "a"); err == nil {
		t.Error("expected Exists error")
	}
	if _, err := s.List(ctx, ""); err == nil {
		t.Error("expected List error")
	}
}
