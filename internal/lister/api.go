package lister

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"corpusd/internal/store"
)

const defaultCacheTTL = 6 * time.Hour

// Cache is the narrow read-through cache contract the catalog-API backend
// needs; store.Store satisfies it directly.
type Cache interface {
	CacheGet(ctx context.Context, key string) (store.APICacheEntry, bool, error)
	CachePut(ctx context.Context, entry store.APICacheEntry) error
}

type apiRecord struct {
	VideoID       string    `json:"video_id"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	ChannelName   string    `json:"channel_name"`
	ChannelURL    string    `json:"channel_url"`
	DurationS     int       `json:"duration_s"`
	PublishedAt   time.Time `json:"published_at"`
	ViewCount     int64     `json:"view_count"`
	LikeCount     int64     `json:"like_count"`
	CommentCount  int64     `json:"comment_count"`
	Description   string    `json:"description"`
	ThumbnailURL  string    `json:"thumbnail_url"`
	Tags          []string  `json:"tags"`
	IsLive        bool      `json:"is_live"`
	IsUpcoming    bool      `json:"is_upcoming"`
	IsMembersOnly bool      `json:"is_members_only"`
}

type apiResponse struct {
	ETag  string      `json:"-"`
	Items []apiRecord `json:"items"`
}

// APILister enumerates candidates via a key-authenticated HTTP catalog API,
// using Cache to avoid quota burn on unchanged channel pages.
type APILister struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Cache      Cache
	CacheTTL   time.Duration
}

// NewAPILister constructs an APILister against baseURL, authenticated with
// apiKey, read-through cached via cache.
func NewAPILister(baseURL, apiKey string, cache Cache) *APILister {
	return &APILister{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Cache:      cache,
		CacheTTL:   defaultCacheTTL,
	}
}

// List queries the catalog API for channelRef, consulting the cache before
// making a request, and streams accepted records to yield.
func (l *APILister) List(ctx context.Context, channelRef string, filters Filters, yield func(SourceMeta) error) error {
	cacheKey := "lister:" + channelRef

	var (
		resp apiResponse
		etag string
	)

	if l.Cache != nil {
		if entry, ok, err := l.Cache.CacheGet(ctx, cacheKey); err == nil && ok {
			if time.Now().Before(entry.ExpiresAt) {
				if err := json.Unmarshal(entry.Data, &resp); err == nil {
					etag = entry.ETag
				}
			}
		}
	}

	if etag == "" || len(resp.Items) == 0 {
		fetched, fetchedETag, err := l.fetch(ctx, channelRef, etag)
		if err != nil {
			return fmt.Errorf("lister: api: %w", err)
		}
		if fetched != nil {
			resp = *fetched
			etag = fetchedETag
			if l.Cache != nil {
				payload, err := json.Marshal(resp)
				if err == nil {
					ttl := l.CacheTTL
					if ttl <= 0 {
						ttl = defaultCacheTTL
					}
					_ = l.Cache.CachePut(ctx, store.APICacheEntry{
						CacheKey:  cacheKey,
						ETag:      etag,
						Data:      payload,
						ExpiresAt: time.Now().Add(ttl),
					})
				}
			}
		}
	}

	records := make([]SourceMeta, 0, len(resp.Items))
	for _, raw := range resp.Items {
		records = append(records, apiRecordToMeta(raw))
	}
	if filters.NewestFirst {
		sortNewestFirst(records)
	}

	for _, meta := range records {
		if ok, _ := filters.Accept(meta); !ok {
			continue
		}
		if err := yield(meta); err != nil {
			return err
		}
	}
	return nil
}

// fetch performs the conditional GET, returning (nil, etag, nil) on a 304.
func (l *APILister) fetch(ctx context.Context, channelRef, knownETag string) (*apiResponse, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("channel", channelRef)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+l.APIKey)
	if knownETag != "" {
		req.Header.Set("If-None-Match", knownETag)
	}

	client := l.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotModified {
		return nil, knownETag, nil
	}
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, "", fmt.Errorf("status %d: %s", res.StatusCode, string(body))
	}

	var resp apiResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	return &resp, res.Header.Get("ETag"), nil
}

func apiRecordToMeta(raw apiRecord) SourceMeta {
	url := raw.URL
	if url == "" {
		url = "https://www.youtube.com/watch?v=" + raw.VideoID
	}
	return SourceMeta{
		ExternalID:    raw.VideoID,
		Title:         raw.Title,
		URL:           url,
		ChannelName:   raw.ChannelName,
		ChannelURL:    raw.ChannelURL,
		DurationS:     raw.DurationS,
		PublishedAt:   raw.PublishedAt,
		ViewCount:     raw.ViewCount,
		LikeCount:     raw.LikeCount,
		CommentCount:  raw.CommentCount,
		Description:   raw.Description,
		ThumbnailURL:  raw.ThumbnailURL,
		Tags:          raw.Tags,
		IsLive:        raw.IsLive,
		IsUpcoming:    raw.IsUpcoming,
		IsMembersOnly: raw.IsMembersOnly,
		Enriched:      raw.Title != "",
	}
}
