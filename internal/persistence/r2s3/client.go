// Package r2s3 copies world snapshots to an S3 compatible bucket (Cloudflare
// R2 by default). Requests are single SigV4 signed PUTs; every snapshot
// carries its header fields as object metadata so a bucket listing tells
// which world, seed and block catalog an object restores.
package r2s3

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	sigV4Service   = "s3"
	defaultRegion  = "auto"

	contentTypeOctets = "application/octet-stream"
	metaPrefix        = "x-amz-meta-"
)

// Object is one upload: a local file, the key it lands under and the
// metadata sent with it. Metadata keys are lower-cased and sent as
// x-amz-meta-<key>.
type Object struct {
	Key         string
	Path        string
	ContentType string
	Metadata    map[string]string
}

// PutResult describes a stored object.
type PutResult struct {
	Key    string
	Size   int64
	SHA256 string
	ETag   string
}

type Client struct {
	endpoint   string
	bucket     string
	creds      credentials
	httpClient *http.Client
	now        func() time.Time
}

type credentials struct {
	accessKeyID     string
	secretAccessKey string
	region          string
}

// New returns a client for bucket at endpoint. An endpoint without a scheme
// gets https. An empty region means "auto", which is what R2 expects.
func New(endpoint, bucket, region, accessKeyID, secretAccessKey string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	bucket = strings.Trim(strings.TrimSpace(bucket), "/")
	creds := credentials{
		accessKeyID:     strings.TrimSpace(accessKeyID),
		secretAccessKey: strings.TrimSpace(secretAccessKey),
		region:          strings.TrimSpace(region),
	}
	if endpoint == "" || bucket == "" || creds.accessKeyID == "" || creds.secretAccessKey == "" {
		return nil, errors.New("r2s3: endpoint, bucket, access key and secret key are required")
	}
	if creds.region == "" {
		creds.region = defaultRegion
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "r2s3: parse endpoint")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("r2s3: invalid endpoint %q", endpoint)
	}
	return &Client{
		endpoint:   strings.TrimRight(u.String(), "/"),
		bucket:     bucket,
		creds:      creds,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		now:        time.Now,
	}, nil
}

// Put uploads obj.Path under obj.Key. The payload is hashed first so the
// signature covers the body.
func (c *Client) Put(ctx context.Context, obj Object) (PutResult, error) {
	key := normalizeObjectKey(obj.Key)
	if key == "" {
		return PutResult{}, errors.Newf("r2s3: invalid object key %q", obj.Key)
	}
	f, err := os.Open(obj.Path)
	if err != nil {
		return PutResult{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return PutResult{}, err
	}
	if st.IsDir() {
		return PutResult{}, errors.Newf("r2s3: %s is a directory", obj.Path)
	}
	sum, err := fileSHA256Hex(f)
	if err != nil {
		return PutResult{}, errors.Wrapf(err, "r2s3: hash %s", obj.Path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return PutResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+c.canonicalURI(key), f)
	if err != nil {
		return PutResult{}, err
	}
	req.ContentLength = st.Size()

	headers := map[string]string{
		"content-type":         obj.ContentType,
		"x-amz-content-sha256": sum,
	}
	if headers["content-type"] == "" {
		headers["content-type"] = contentTypeOctets
	}
	for k, v := range obj.Metadata {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		headers[metaPrefix+k] = strings.TrimSpace(v)
	}
	c.sign(req, headers, sum)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PutResult{}, errors.Wrapf(err, "r2s3: put %s", key)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return PutResult{}, errors.Newf("r2s3: put %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return PutResult{
		Key:    key,
		Size:   st.Size(),
		SHA256: sum,
		ETag:   strings.Trim(resp.Header.Get("ETag"), `"`),
	}, nil
}

func (c *Client) canonicalURI(key string) string {
	return "/" + c.bucket + "/" + escapePath(key)
}

// sign sets headers on req plus the SigV4 Authorization header. Every header
// in headers is signed, as are host and x-amz-date.
func (c *Client) sign(req *http.Request, headers map[string]string, payloadHash string) {
	now := c.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	signed := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		signed[k] = v
	}
	signed["host"] = req.URL.Host
	signed["x-amz-date"] = amzDate

	names := make([]string, 0, len(signed))
	for k := range signed {
		names = append(names, k)
	}
	sort.Strings(names)

	var canonical strings.Builder
	for _, k := range names {
		canonical.WriteString(k + ":" + signed[k] + "\n")
		if k != "host" {
			req.Header.Set(k, signed[k])
		}
	}
	signedHeaders := strings.Join(names, ";")

	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		"",
		canonical.String(),
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, c.creds.region, sigV4Service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{sigV4Algorithm, amzDate, scope, sha256Hex([]byte(canonicalRequest))}, "\n")
	key := deriveSigningKey(c.creds.secretAccessKey, dateStamp, c.creds.region, sigV4Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, c.creds.accessKeyID, scope, signedHeaders, signature))
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func fileSHA256Hex(f *os.File) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func deriveSigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
