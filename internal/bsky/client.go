// Package bsky is a minimal Bluesky XRPC client: create a session, then
// create a post record.
package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/compose"
)

const (
	DefaultHost    = "https://bsky.social"
	DefaultTimeout = 30 * time.Second

	createSessionPath = "/xrpc/com.atproto.server.createSession"
	createRecordPath  = "/xrpc/com.atproto.repo.createRecord"

	postCollection = "app.bsky.feed.post"
	linkFeature    = "app.bsky.richtext.facet#link"
	userAgent      = "autoposter/1.0 (+https://github.com/ReactorcoreGames/BlueskyAutoPoster)"
	maxErrorBody   = 64 << 10
)

// Options configures a Client.
type Options struct {
	Host        string        // PDS base URL, DefaultHost when empty
	Timeout     time.Duration // per request, DefaultTimeout when zero
	MinInterval time.Duration // minimum spacing between requests, zero disables
	Langs       []string      // BCP-47 tags stored on each post
	HTTPClient  *http.Client
}

// Client talks to one PDS.
type Client struct {
	host    string
	timeout time.Duration
	langs   []string
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// Session is an authenticated account session.
type Session struct {
	AccessJwt  string
	RefreshJwt string
	Handle     string
	DID        string
	ExpiresAt  time.Time // zero when the access token carries no exp claim
}

// Expired reports whether the access token is past its exp claim.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// PostRef identifies a created post.
type PostRef struct {
	URI string // at://did/app.bsky.feed.post/rkey
	CID string
}

// WebURL returns the bsky.app permalink for the post, or "" when the URI is
// not a post URI.
func (r PostRef) WebURL(handle string) string {
	rest, ok := strings.CutPrefix(r.URI, "at://")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != postCollection || parts[2] == "" {
		return ""
	}
	actor := handle
	if actor == "" {
		actor = parts[0]
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", actor, parts[2])
}

// NewClient validates opts and creates a client.
func NewClient(opts Options) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = DefaultHost
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, fmt.Errorf("bsky: invalid host %q", opts.Host)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Client{
		host:    host,
		timeout: timeout,
		langs:   opts.Langs,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}, nil
}

type createSessionInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createSessionOutput struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
}

// CreateSession exchanges a handle and app password for a session. Every
// failure is an *AuthError.
func (c *Client) CreateSession(ctx context.Context, handle, appPassword string) (*Session, error) {
	if strings.TrimSpace(handle) == "" || appPassword == "" {
		return nil, &AuthError{Err: errors.New("handle and app password are required")}
	}

	var out createSessionOutput
	err := c.call(ctx, createSessionPath, "", createSessionInput{
		Identifier: strings.TrimSpace(handle),
		Password:   appPassword,
	}, &out)
	if err != nil {
		var xe *xrpcError
		if errors.As(err, &xe) {
			return nil, &AuthError{Status: xe.Status, Code: xe.Code, Message: xe.Message, Err: err}
		}
		return nil, &AuthError{Err: err}
	}
	if out.AccessJwt == "" {
		return nil, &AuthError{Err: errors.New("session response has no access token")}
	}

	return &Session{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		DID:        out.DID,
		ExpiresAt:  tokenExpiry(out.AccessJwt),
	}, nil
}

type facetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

type facet struct {
	Index    facetIndex     `json:"index"`
	Features []facetFeature `json:"features"`
}

type postRecord struct {
	Type      string   `json:"$type"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"createdAt"`
	Langs     []string `json:"langs,omitempty"`
	Facets    []facet  `json:"facets,omitempty"`
}

type createRecordInput struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordOutput struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// CreatePost publishes p as a new post. Every failure is a *PublishError.
func (c *Client) CreatePost(ctx context.Context, s *Session, p compose.Post) (PostRef, error) {
	if s == nil || s.AccessJwt == "" {
		return PostRef{}, &PublishError{Err: errors.New("no session")}
	}
	now := c.now()
	if s.Expired(now) {
		return PostRef{}, &PublishError{Err: fmt.Errorf("session expired at %s", s.ExpiresAt.UTC().Format(time.RFC3339))}
	}

	repo := s.DID
	if repo == "" {
		repo = s.Handle
	}

	facets := make([]facet, 0, len(p.Facets))
	for _, f := range p.Facets {
		facets = append(facets, facet{
			Index:    facetIndex{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd},
			Features: []facetFeature{{Type: linkFeature, URI: f.URI}},
		})
	}

	var out createRecordOutput
	err := c.call(ctx, createRecordPath, s.AccessJwt, createRecordInput{
		Repo:       repo,
		Collection: postCollection,
		Record: postRecord{
			Type:      postCollection,
			Text:      p.Text,
			CreatedAt: now.UTC().Format("2006-01-02T15:04:05.000Z"),
			Langs:     c.langs,
			Facets:    facets,
		},
	}, &out)
	if err != nil {
		var xe *xrpcError
		if errors.As(err, &xe) {
			pe := &PublishError{Status: xe.Status, Code: xe.Code, Message: xe.Message, Err: err}
			if xe.rateLimited() {
				pe.RateLimited = true
				pe.ResetAt = xe.resetAt()
			}
			return PostRef{}, pe
		}
		return PostRef{}, &PublishError{Err: err}
	}
	if out.URI == "" {
		return PostRef{}, &PublishError{Err: errors.New("create record response has no uri")}
	}

	return PostRef{URI: out.URI, CID: out.CID}, nil
}

// call POSTs in as JSON to an XRPC procedure and decodes the response into
// out. Non-2xx responses come back as *xrpcError.
func (c *Client) call(ctx context.Context, path, token string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		xe := &xrpcError{Status: resp.StatusCode, Header: resp.Header}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, xe)
		return xe
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server is the only party that can verify it.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	// Bluesky signs with algorithms jwt does not register; the claims are
	// still decoded when that is the only problem.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
