package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"golang.org/x/time/rate"
)

const (
	// PublicAPIBaseURL is the public Bluesky API endpoint
	PublicAPIBaseURL = "https://public.api.bsky.app"
	// PLCDirectoryURL is the PLC directory for resolving DIDs
	PLCDirectoryURL = "https://plc.directory"

	blockCollection = "app.bsky.graph.block"
)

// PublicConfig configures a PublicClient. Zero values select the defaults.
type PublicConfig struct {
	BaseURL    string
	PLCURL     string
	RateLimit  float64
	HTTPClient *http.Client
}

// PublicClient provides unauthenticated access to public ATProto APIs
type PublicClient struct {
	appview    *xrpc.Client
	plcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	pds        *endpointCache
}

// NewPublicClient creates a new public API client
func NewPublicClient(cfg PublicConfig) *PublicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = PublicAPIBaseURL
	}
	if cfg.PLCURL == "" {
		cfg.PLCURL = PLCDirectoryURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &PublicClient{
		appview:    &xrpc.Client{Host: cfg.BaseURL, Client: cfg.HTTPClient},
		plcURL:     strings.TrimSuffix(cfg.PLCURL, "/"),
		httpClient: cfg.HTTPClient,
		limiter:    newLimiter(cfg.RateLimit),
		pds:        newEndpointCache(),
	}
}

// GetPDSEndpoint resolves a DID to find the user's PDS endpoint
func (c *PublicClient) GetPDSEndpoint(ctx context.Context, did string) (string, error) {
	if pds, ok := c.pds.Get(did); ok {
		return pds, nil
	}

	var pdsEndpoint string

	switch {
	case strings.HasPrefix(did, "did:plc:"):
		doc, err := c.fetchDIDDocument(ctx, c.plcURL+"/"+did)
		if err != nil {
			return "", err
		}
		pdsEndpoint = doc.pdsEndpoint()
	case strings.HasPrefix(did, "did:web:"):
		domain := strings.TrimPrefix(did, "did:web:")
		doc, err := c.fetchDIDDocument(ctx, "https://"+domain+"/.well-known/did.json")
		if err != nil {
			return "", err
		}
		pdsEndpoint = doc.pdsEndpoint()
	}

	if pdsEndpoint == "" {
		return "", fmt.Errorf("could not resolve PDS endpoint for %s", did)
	}

	c.pds.Add(did, pdsEndpoint)
	return pdsEndpoint, nil
}

type didDocument struct {
	Service []struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		ServiceEndpoint string `json:"serviceEndpoint"`
	} `json:"service"`
}

func (d *didDocument) pdsEndpoint() string {
	for _, svc := range d.Service {
		if svc.ID == "#atproto_pds" || svc.Type == "AtprotoPersonalDataServer" {
			return strings.TrimSuffix(svc.ServiceEndpoint, "/")
		}
	}
	return ""
}

func (c *PublicClient) fetchDIDDocument(ctx context.Context, docURL string) (*didDocument, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching DID document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DID resolution failed with status %d", resp.StatusCode)
	}

	var doc didDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding DID document: %w", err)
	}
	return &doc, nil
}

// Profile represents a user's public profile
type Profile struct {
	DID         string  `json:"did"`
	Handle      string  `json:"handle"`
	DisplayName *string `json:"displayName,omitempty"`
}

func profileFromView(v *bsky.ActorDefs_ProfileViewDetailed) *Profile {
	return &Profile{DID: v.Did, Handle: v.Handle, DisplayName: v.DisplayName}
}

// GetProfile fetches a user's public profile by DID or handle
func (c *PublicClient) GetProfile(ctx context.Context, actor string) (*Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.ActorGetProfile(ctx, c.appview, actor)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return profileFromView(out), nil
}

// ListBlocks returns one page of the DIDs blocked by actor, read from the
// block records in the actor's own repository. The returned cursor is empty
// on the last page.
func (c *PublicClient) ListBlocks(ctx context.Context, actor, cursor string, limit int) ([]string, string, error) {
	pdsEndpoint, err := c.GetPDSEndpoint(ctx, actor)
	if err != nil {
		return nil, "", fmt.Errorf("resolving PDS: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	pds := &xrpc.Client{Host: pdsEndpoint, Client: c.httpClient}
	out, err := comatproto.RepoListRecords(ctx, pds, blockCollection, cursor, int64(limit), actor, false)
	if err != nil {
		return nil, "", fmt.Errorf("listing blocks: %w", err)
	}

	subjects := make([]string, 0, len(out.Records))
	for _, rec := range out.Records {
		if rec.Value == nil {
			continue
		}
		if block, ok := rec.Value.Val.(*bsky.GraphBlock); ok && block.Subject != "" {
			subjects = append(subjects, block.Subject)
		}
	}
	return subjects, deref(out.Cursor), nil
}

// ListLikers returns one page of the DIDs that liked the record at uri.
func (c *PublicClient) ListLikers(ctx context.Context, uri, cursor string, limit int) ([]string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	out, err := bsky.FeedGetLikes(ctx, c.appview, "", cursor, int64(limit), uri)
	if err != nil {
		return nil, "", fmt.Errorf("listing likes: %w", err)
	}

	dids := make([]string, 0, len(out.Likes))
	for _, like := range out.Likes {
		if like.Actor != nil {
			dids = append(dids, like.Actor.Did)
		}
	}
	return dids, deref(out.Cursor), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
