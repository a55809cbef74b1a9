// Package storage downloads colorized results from absolute locators.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/locator"
)

// Client downloads results over http, https and s3.
type Client struct {
	httpClient *http.Client
	region     string

	mu       sync.Mutex
	s3Client *s3.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for http and https locators.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithS3Client sets the client used for s3 locators instead of one built
// from the default AWS config.
func WithS3Client(s *s3.Client) Option {
	return func(c *Client) {
		c.s3Client = s
	}
}

// NewClient creates a downloader. The S3 client is created on first use.
func NewClient(region string, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		region:     region,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// s3Conn returns the S3 client, loading AWS config with anonymous credentials
// the first time.
func (c *Client) s3Conn(ctx context.Context) (*s3.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.s3Client != nil {
		return c.s3Client, nil
	}

	slog.Info("s3_client_init", "region", c.region)
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	c.s3Client = s3.NewFromConfig(cfg)
	return c.s3Client, nil
}

// DownloadResult contains download metadata
type DownloadResult struct {
	Locator   string
	LocalPath string
	SHA256    string
	Size      int64
}

// Download fetches loc into dir. The file is named after the last path
// element of the locator.
func (c *Client) Download(ctx context.Context, loc, dir string) (*DownloadResult, error) {
	if !locator.IsAbsolute(loc) {
		return nil, fmt.Errorf("locator is not absolute: %q", loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse locator")
	}

	slog.Info("result_download_start", "locator", loc, "dir", dir)

	var body io.ReadCloser
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		body, err = c.getHTTP(ctx, loc)
	case "s3":
		body, err = c.getS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		err = fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create download dir")
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		slog.Error("local_file_creation_failed", "dir", dir, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	writer := io.MultiWriter(tmp, hash)

	size, err := io.Copy(writer, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		slog.Error("result_download_failed", "locator", loc, "error", err)
		return nil, errors.Wrap(err, "failed to download file")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	localPath := filepath.Join(dir, fileName(u, checksum))
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return nil, errors.Wrap(err, "failed to move download into place")
	}

	slog.Info("result_download_complete",
		"locator", loc,
		"size", size,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &DownloadResult{
		Locator:   loc,
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}

func fileName(u *url.URL, checksum string) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "result-" + checksum[:16]
	}
	return name
}

func (c *Client) getHTTP(ctx context.Context, loc string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("http_get_failed", "locator", loc, "error", err)
		return nil, errors.WithCause(errors.KindNetwork, "download failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		slog.Error("http_get_status", "locator", loc, "status", resp.StatusCode)
		return nil, &errors.Error{Kind: errors.KindServer, Message: fmt.Sprintf("download failed with status %d", resp.StatusCode), Status: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *Client) getS3(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 locator needs bucket and key: s3://%s/%s", bucket, key)
	}
	client, err := c.s3Conn(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", bucket, "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	return result.Body, nil
}

// List expands an s3://bucket/prefix locator into the locators of every
// object under the prefix.
func (c *Client) List(ctx context.Context, prefixLoc string) ([]string, error) {
	u, err := url.Parse(prefixLoc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse locator")
	}
	if strings.ToLower(u.Scheme) != "s3" || u.Host == "" {
		return nil, fmt.Errorf("not an s3 prefix: %q", prefixLoc)
	}
	bucket, prefix := u.Host, strings.TrimPrefix(u.Path, "/")

	client, err := c.s3Conn(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("s3_list_start", "bucket", bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	var locs []string
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && !strings.HasSuffix(*obj.Key, "/") {
				locs = append(locs, "s3://"+bucket+"/"+*obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(locs))
	return locs, nil
}
