package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"mvmarket-view-onchain/model"
)

// MetadataGateway はオフチェーンのメタデータドキュメントの取得を担当
type MetadataGateway interface {
	// FetchMetadata は tokenURI の指すJSONを取得してデコードする
	FetchMetadata(ctx context.Context, uri string) (*model.TokenMetadata, error)

	// ResolveURI は ipfs:// などをHTTPで取得可能なURLに変換する
	ResolveURI(uri string) string
}

type Options struct {
	Timeout     time.Duration
	Retries     int
	CacheTTL    time.Duration
	IpfsGateway string
}

type HttpMetadataGateway struct {
	client      *retryablehttp.Client
	cache       *cache.Cache
	ipfsGateway string
}

func NewHttpMetadataGateway(opts Options) *HttpMetadataGateway {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = leveledLogger{zap.L().Sugar()}

	g := &HttpMetadataGateway{
		client:      client,
		ipfsGateway: opts.IpfsGateway,
	}
	if opts.CacheTTL > 0 {
		g.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return g
}

func (g *HttpMetadataGateway) ResolveURI(uri string) string {
	return ResolveURI(uri, g.ipfsGateway)
}

// FetchMetadata はメタデータを取得する。2xx以外は失敗として扱う
func (g *HttpMetadataGateway) FetchMetadata(ctx context.Context, uri string) (*model.TokenMetadata, error) {
	resolved := g.ResolveURI(uri)
	if !IsUrl(resolved) {
		return nil, fmt.Errorf("%w: %q is not a fetchable URL", model.ErrMetadataUnavailable, uri)
	}

	if g.cache != nil {
		if cached, found := g.cache.Get(resolved); found {
			md := cached.(model.TokenMetadata)
			return &md, nil
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMetadataUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMetadataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %s", model.ErrMetadataUnavailable, resolved, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", model.ErrMetadataUnavailable, err)
	}

	var md model.TokenMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("%w: malformed metadata at %s: %v", model.ErrMetadataUnavailable, resolved, err)
	}

	if g.cache != nil {
		g.cache.Set(resolved, md, cache.DefaultExpiration)
	}

	zap.L().With(zap.String("uri", resolved), zap.String("name", md.Name)).Debug("Fetched token metadata")
	return &md, nil
}

// leveledLogger は retryablehttp のログを zap に流す
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
func (l leveledLogger) Info(msg string, keysAndValues ...interface{})  { l.s.Debugw(msg, keysAndValues...) }
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l leveledLogger) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
