package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ovenbird/recipebook/internal/common"
)

type fakeS3 struct {
	putErr error
	putIn  *s3.PutObjectInput

	getBody  string
	getErrs  []error // consumed per call
	getCalls int

	delErr error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putIn = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	call := f.getCalls
	f.getCalls++
	if call < len(f.getErrs) && f.getErrs[call] != nil {
		return nil, f.getErrs[call]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.delErr != nil {
		return nil, f.delErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func TestPut_SetsBucketAndContentType(t *testing.T) {
	f := &fakeS3{}
	s := &S3Store{client: f, bucket: "images"}

	if err := s.Put(context.Background(), "k1", []byte("data"), "image/jpeg"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if *f.putIn.Bucket != "images" || *f.putIn.Key != "k1" || *f.putIn.ContentType != "image/jpeg" {
		t.Fatalf("unexpected put input: %+v", f.putIn)
	}
}

func TestGet_Success(t *testing.T) {
	f := &fakeS3{getBody: "payload"}
	s := &S3Store{client: f, bucket: "images"}

	data, err := s.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestGet_RetriesTransientErrors(t *testing.T) {
	f := &fakeS3{
		getBody: "payload",
		getErrs: []error{errors.New("conn reset"), errors.New("conn reset")},
	}
	s := &S3Store{client: f, bucket: "images"}

	data, err := s.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data: %q", data)
	}
	if f.getCalls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.getCalls)
	}
}

func TestGet_NoSuchKeyIsNotFoundAndNotRetried(t *testing.T) {
	f := &fakeS3{getErrs: []error{&types.NoSuchKey{}}}
	s := &S3Store{client: f, bucket: "images"}

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if f.getCalls != 1 {
		t.Fatalf("not-found must not be retried, got %d calls", f.getCalls)
	}
}

func TestDelete_Error(t *testing.T) {
	f := &fakeS3{delErr: errors.New("down")}
	s := &S3Store{client: f, bucket: "images"}

	if err := s.Delete(context.Background(), "k1"); err == nil {
		t.Fatalf("expected error")
	}
}
