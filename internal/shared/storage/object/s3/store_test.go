package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  map[string][]byte
	putErr  error
	hasDead bool
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	_ = optFns
	if _, ok := ctx.Deadline(); ok {
		f.hasDead = true
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.bodies == nil {
		f.bodies = map[string][]byte{}
	}
	f.bodies[aws.ToString(params.Key)] = data
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	_ = ctx
	_ = optFns
	data, ok := f.bodies[aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestPutReturnsLocationAndEncrypts(t *testing.T) {
	client := &fakeS3{}
	store := newWithClient(client, "eu-west-1", Options{Bucket: "inbound"})

	loc, err := store.Put(context.Background(), "attachments/resend_e1_a1.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if loc.Region != "eu-west-1" || loc.Bucket != "inbound" || loc.Key != "attachments/resend_e1_a1.png" {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if len(client.puts) != 1 {
		t.Fatalf("expected 1 put, got %d", len(client.puts))
	}
	put := client.puts[0]
	if put.ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected AES256 encryption, got %s", put.ServerSideEncryption)
	}
	if aws.ToString(put.ContentType) != "image/png" {
		t.Fatalf("expected content type image/png, got %s", aws.ToString(put.ContentType))
	}
	if aws.ToInt64(put.ContentLength) != int64(len("png-bytes")) {
		t.Fatalf("unexpected content length %d", aws.ToInt64(put.ContentLength))
	}
	if !client.hasDead {
		t.Fatalf("expected upload context to carry a deadline")
	}
}

func TestPutUsesKMSWhenConfigured(t *testing.T) {
	client := &fakeS3{}
	store := newWithClient(client, "us-east-1", Options{Bucket: "inbound", KMSKeyID: "key-1"})

	if _, err := store.Put(context.Background(), "k", "", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	put := client.puts[0]
	if put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Fatalf("expected KMS encryption, got %s", put.ServerSideEncryption)
	}
	if aws.ToString(put.SSEKMSKeyId) != "key-1" {
		t.Fatalf("expected kms key id, got %s", aws.ToString(put.SSEKMSKeyId))
	}
	if aws.ToString(put.ContentType) != "application/octet-stream" {
		t.Fatalf("expected default content type, got %s", aws.ToString(put.ContentType))
	}
}

func TestPutSameKeyOverwrites(t *testing.T) {
	client := &fakeS3{}
	store := newWithClient(client, "us-east-1", Options{Bucket: "inbound"})
	ctx := context.Background()

	if _, err := store.Put(ctx, "p/resend_e1_a1.png", "image/png", []byte("first")); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if _, err := store.Put(ctx, "p/resend_e1_a1.png", "image/png", []byte("second")); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	if len(client.bodies) != 1 {
		t.Fatalf("expected a single object, got %d", len(client.bodies))
	}

	rc, err := store.Open(ctx, "p/resend_e1_a1.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" {
		t.Fatalf("expected overwritten body, got %q", data)
	}
}

func TestPutWrapsClientError(t *testing.T) {
	client := &fakeS3{putErr: errors.New("access denied")}
	store := newWithClient(client, "us-east-1", Options{Bucket: "inbound"})

	_, err := store.Put(context.Background(), "k", "text/plain", []byte("x"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, client.putErr) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}
