package blobstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// recordingRoundTripper answers every S3 call with 200 and keeps the requests.
type recordingRoundTripper struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func (m *recordingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	m.mu.Lock()
	m.requests = append(m.requests, recordedRequest{
		method:      req.Method,
		path:        req.URL.Path,
		contentType: req.Header.Get("Content-Type"),
		body:        body,
	})
	m.mu.Unlock()
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     http.Header{"ETag": {"\"etag\""}},
		Request:    req,
	}, nil
}

func newTestS3Store(rt http.RoundTripper, cfg S3Config) *S3Store {
	client := s3.New(s3.Options{
		Region:       "us-west-2",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		HTTPClient:   &http.Client{Transport: rt},
		BaseEndpoint: aws.String("https://mock.s3.local"),
		UsePathStyle: true,
	})
	if cfg.Region == "" {
		cfg.Region = "us-west-2"
	}
	return newS3Store(client, cfg)
}

func TestS3Store_Put(t *testing.T) {
	rt := &recordingRoundTripper{}
	store := newTestS3Store(rt, S3Config{Bucket: "dynamometer-profile-images"})

	url, err := store.Put(context.Background(), "Dynamo_Profile_Images/t@x.com_1.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://dynamometer-profile-images.s3.us-west-2.amazonaws.com/Dynamo_Profile_Images/t@x.com_1.jpg" {
		t.Errorf("unexpected url %s", url)
	}
	if len(rt.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(rt.requests))
	}
	got := rt.requests[0]
	if got.method != http.MethodPut {
		t.Errorf("expected PUT, got %s", got.method)
	}
	if got.path != "/dynamometer-profile-images/Dynamo_Profile_Images/t@x.com_1.jpg" {
		t.Errorf("unexpected path %s", got.path)
	}
	if got.contentType != "image/jpeg" {
		t.Errorf("unexpected content type %s", got.contentType)
	}
	if !strings.Contains(string(got.body), "jpeg-bytes") {
		t.Errorf("body not uploaded: %q", got.body)
	}
}

func TestS3Store_PublicBaseURL(t *testing.T) {
	store := newTestS3Store(&recordingRoundTripper{}, S3Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"})
	if got := store.PublicURL("a b/c.png"); got != "https://cdn.example.com/a%20b/c.png" {
		t.Errorf("unexpected url %s", got)
	}
}

func TestS3Store_PutFailure(t *testing.T) {
	store := newTestS3Store(&recordingRoundTripper{status: http.StatusForbidden}, S3Config{Bucket: "b"})
	if _, err := store.Put(context.Background(), "k", "image/png", []byte("x")); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestS3Store_Validation(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}
	store := newTestS3Store(&recordingRoundTripper{}, S3Config{Bucket: "b"})
	if _, err := store.Put(context.Background(), "", "image/png", []byte("x")); err != ErrMissingKey {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}
