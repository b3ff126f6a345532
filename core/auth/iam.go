package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	bceAuthVersion = "bce-auth-v1"
	headerBceDate  = "X-Bce-Date"
	bceTimeFormat  = "2006-01-02T15:04:05Z"
)

// signedHeaders are the headers covered by the signature, in canonical order.
var signedHeaders = []string{"content-type", "host", "x-bce-date"}

// IAMSigner signs requests with the BCE v1 scheme:
//
//	bce-auth-v1/{accessKey}/{timestamp}/{expiration}/{signedHeaders}/{signature}
type IAMSigner struct {
	accessKey  string
	secretKey  string
	expiration time.Duration
	now        func() time.Time
}

// NewIAMSigner returns a signer whose signatures stay valid for expiration.
func NewIAMSigner(accessKey, secretKey string, expiration time.Duration) *IAMSigner {
	return &IAMSigner{
		accessKey:  accessKey,
		secretKey:  secretKey,
		expiration: expiration,
		now:        time.Now,
	}
}

func (s *IAMSigner) Method() string { return "iam" }

// Authenticate sets X-Bce-Date and Authorization on req. The host used in
// the signature is the one net/http will send.
func (s *IAMSigner) Authenticate(_ context.Context, req *http.Request) error {
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	timestamp := s.now().UTC().Format(bceTimeFormat)
	req.Header.Set(headerBceDate, timestamp)

	req.Header.Set("Authorization", s.sign(req, host, timestamp))
	return nil
}

func (s *IAMSigner) sign(req *http.Request, host, timestamp string) string {
	prefix := fmt.Sprintf("%s/%s/%s/%d", bceAuthVersion, s.accessKey, timestamp, int(s.expiration.Seconds()))
	signingKey := hmacHex([]byte(s.secretKey), prefix)
	signature := hmacHex([]byte(signingKey), canonicalRequest(req, host))
	return fmt.Sprintf("%s/%s/%s", prefix, strings.Join(signedHeaders, ";"), signature)
}

// canonicalRequest is METHOD\nURI\nQUERY\nHEADERS with every component
// URI-encoded and sorted.
func canonicalRequest(req *http.Request, host string) string {
	values := map[string]string{
		"content-type": req.Header.Get("Content-Type"),
		"host":         host,
		"x-bce-date":   req.Header.Get(headerBceDate),
	}
	headers := make([]string, 0, len(signedHeaders))
	for _, name := range signedHeaders {
		headers = append(headers, uriEncode(name, true)+":"+uriEncode(strings.TrimSpace(values[name]), true))
	}
	sort.Strings(headers)

	return strings.Join([]string{
		strings.ToUpper(req.Method),
		canonicalURI(req.URL.Path),
		canonicalQuery(req.URL.Query()),
		strings.Join(headers, "\n"),
	}, "\n")
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return uriEncode(path, false)
}

func canonicalQuery(query map[string][]string) string {
	pairs := make([]string, 0, len(query))
	for k, vs := range query {
		if strings.EqualFold(k, "authorization") {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, uriEncode(k, true)+"="+uriEncode(v, true))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// uriEncode percent-encodes everything outside the RFC 3986 unreserved set.
// Slashes are kept when encodeSlash is false.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func hmacHex(key []byte, msg string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
