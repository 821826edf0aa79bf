package atproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultServiceURL is the entryway used for the service account.
const DefaultServiceURL = "https://bsky.social"

// ErrNoCredentials is returned when an authenticated call is attempted
// without an identifier and password.
var ErrNoCredentials = errors.New("atproto: missing login credentials")

// ClientConfig configures an authenticated Client.
type ClientConfig struct {
	Host       string
	Identifier string
	Password   string
	// RateLimit is the maximum number of requests per second; zero disables limiting.
	RateLimit  float64
	HTTPClient *http.Client
}

// Client makes XRPC calls as the service account. The session is created on
// first use and recreated once when the server reports an expired token.
type Client struct {
	mu         sync.Mutex
	xrpc       *xrpc.Client
	limiter    *rate.Limiter
	identifier string
	password   string
}

// NewClient creates a new authenticated atproto client
func NewClient(cfg ClientConfig) *Client {
	host := cfg.Host
	if host == "" {
		host = DefaultServiceURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		xrpc:       &xrpc.Client{Host: host, Client: httpClient},
		limiter:    newLimiter(cfg.RateLimit),
		identifier: cfg.Identifier,
		password:   cfg.Password,
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(int(rps), 1)
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Login creates a new session for the configured account.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	if c.identifier == "" || c.password == "" {
		return ErrNoCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.xrpc.Auth = nil
	out, err := comatproto.ServerCreateSession(ctx, c.xrpc, &comatproto.ServerCreateSession_Input{
		Identifier: c.identifier,
		Password:   c.password,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.xrpc.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Did:        out.Did,
		Handle:     out.Handle,
	}
	log.Info().Str("did", out.Did).Str("handle", out.Handle).Msg("atproto: session created")
	return nil
}

// DID returns the account DID of the current session, or "" before login.
func (c *Client) DID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xrpc.Auth == nil {
		return ""
	}
	return c.xrpc.Auth.Did
}

// do runs fn with an authenticated client, logging in when needed.
func (c *Client) do(ctx context.Context, fn func(cl *xrpc.Client, did string) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.xrpc.Auth == nil {
		if err := c.login(ctx); err != nil {
			return err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	err := fn(c.xrpc, c.xrpc.Auth.Did)
	if !isExpiredToken(err) {
		return err
	}

	log.Debug().Msg("atproto: access token expired, logging in again")
	if err := c.login(ctx); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(c.xrpc, c.xrpc.Auth.Did)
}

func isExpiredToken(err error) bool {
	var xerr *xrpc.XRPCError
	return errors.As(err, &xerr) && xerr.ErrStr == "ExpiredToken"
}

// CreateRecordInput contains parameters for creating a record
type CreateRecordInput struct {
	Collection string
	Record     lexutil.CBOR
	RKey       *string // Optional, if nil a TID will be generated
}

// RecordOutput contains the result of writing a record
type RecordOutput struct {
	URI string // AT-URI of the record
	CID string // Content ID
}

// CreateRecord creates a new record in the account's repository
func (c *Client) CreateRecord(ctx context.Context, input *CreateRecordInput) (*RecordOutput, error) {
	var out *comatproto.RepoCreateRecord_Output
	err := c.do(ctx, func(cl *xrpc.Client, did string) error {
		var err error
		out, err = comatproto.RepoCreateRecord(ctx, cl, &comatproto.RepoCreateRecord_Input{
			Collection: input.Collection,
			Repo:       did,
			Rkey:       input.RKey,
			Record:     &lexutil.LexiconTypeDecoder{Val: input.Record},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return &RecordOutput{URI: out.Uri, CID: out.Cid}, nil
}

// PutRecordInput contains parameters for writing a record at a fixed key
type PutRecordInput struct {
	Collection string
	RKey       string
	Record     lexutil.CBOR
}

// PutRecord creates or replaces a record in the account's repository
func (c *Client) PutRecord(ctx context.Context, input *PutRecordInput) (*RecordOutput, error) {
	var out *comatproto.RepoPutRecord_Output
	err := c.do(ctx, func(cl *xrpc.Client, did string) error {
		var err error
		out, err = comatproto.RepoPutRecord(ctx, cl, &comatproto.RepoPutRecord_Input{
			Collection: input.Collection,
			Repo:       did,
			Rkey:       input.RKey,
			Record:     &lexutil.LexiconTypeDecoder{Val: input.Record},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put record: %w", err)
	}
	return &RecordOutput{URI: out.Uri, CID: out.Cid}, nil
}

// CreatePost publishes a post as the service account.
func (c *Client) CreatePost(ctx context.Context, post *bsky.FeedPost) (*RecordOutput, error) {
	post.LexiconTypeID = "app.bsky.feed.post"
	return c.CreateRecord(ctx, &CreateRecordInput{
		Collection: "app.bsky.feed.post",
		Record:     post,
	})
}

// GetProfile fetches a profile through the authenticated session.
func (c *Client) GetProfile(ctx context.Context, actor string) (*Profile, error) {
	var out *bsky.ActorDefs_ProfileViewDetailed
	err := c.do(ctx, func(cl *xrpc.Client, _ string) error {
		var err error
		out, err = bsky.ActorGetProfile(ctx, cl, actor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return profileFromView(out), nil
}

// UploadBlob stores data in the account's repository and returns the blob
// reference to embed in a record.
func (c *Client) UploadBlob(ctx context.Context, data []byte) (*lexutil.LexBlob, error) {
	var out *comatproto.RepoUploadBlob_Output
	err := c.do(ctx, func(cl *xrpc.Client, _ string) error {
		var err error
		out, err = comatproto.RepoUploadBlob(ctx, cl, bytes.NewReader(data))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	return out.Blob, nil
}
