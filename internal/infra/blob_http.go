package infra

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/ports"
)

// HTTPBlobStore talks to an S3-compatible store over plain HTTP with
// HMAC-signed, expiring URLs. The store enforces expiry on its side; this
// client only mints and consumes the signatures.
type HTTPBlobStore struct {
	cfg    config.BlobConfig
	client *http.Client
	now    func() time.Time
}

func NewHTTPBlobStore(cfg config.BlobConfig) *HTTPBlobStore {
	return &HTTPBlobStore{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		now:    time.Now,
	}
}

func (s *HTTPBlobStore) sign(method, key string, exp int64) string {
	h := hmac.New(sha256.New, []byte(s.cfg.Secret))
	fmt.Fprintf(h, "%s\n%s/%s\n%d", method, s.cfg.Bucket, key, exp)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *HTTPBlobStore) signedURL(method, key string, ttl time.Duration) (string, time.Time) {
	exp := s.now().Add(ttl)
	sig := s.sign(method, key, exp.Unix())
	url := fmt.Sprintf("%s/%s/%s?exp=%d&sig=%s",
		s.cfg.Endpoint, s.cfg.Bucket, key, exp.Unix(), sig)
	return url, exp
}

func (s *HTTPBlobStore) PresignPut(key string) ports.UploadCredential {
	url, exp := s.signedURL(http.MethodPut, key, s.cfg.UploadTTL)
	return ports.UploadCredential{
		StorageKey: key,
		UploadURL:  url,
		ExpiresAt:  exp,
	}
}

func (s *HTTPBlobStore) do(ctx context.Context, method, key string, body io.Reader) (*http.Response, error) {
	url, _ := s.signedURL(method, key, time.Minute)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob %s %s: %w", method, key, err)
	}
	return resp, nil
}

func (s *HTTPBlobStore) Put(ctx context.Context, key string, data []byte) error {
	resp, err := s.do(ctx, http.MethodPut, key, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("blob put %s: http %d", key, resp.StatusCode)
	}
	return nil
}

func (s *HTTPBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ports.ErrBlobNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blob get %s: http %d", key, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPBlobStore) Head(ctx context.Context, key string) (int64, error) {
	resp, err := s.do(ctx, http.MethodHead, key, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ports.ErrBlobNotFound
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("blob head %s: http %d", key, resp.StatusCode)
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("blob head %s: bad content-length: %w", key, err)
	}
	return size, nil
}

func (s *HTTPBlobStore) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// already gone counts as deleted
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("blob delete %s: http %d", key, resp.StatusCode)
	}
	return nil
}
