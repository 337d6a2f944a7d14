package lister

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Executor runs the scraper subprocess, abstracted so tests can substitute
// canned output without invoking a real binary.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// rawRecord is one line of the scraper's newline-delimited JSON output:
// {video_id, title, duration_s?, upload_date?}. Enrichment fields are
// optional; their absence degrades the record rather than failing it.
type rawRecord struct {
	VideoID       string  `json:"video_id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	ChannelName   string  `json:"channel_name"`
	ChannelURL    string  `json:"channel_url"`
	DurationS     *int    `json:"duration_s"`
	UploadDate    string  `json:"upload_date"`
	ViewCount     *int64  `json:"view_count"`
	LikeCount     *int64  `json:"like_count"`
	CommentCount  *int64  `json:"comment_count"`
	Description   string  `json:"description"`
	ThumbnailURL  string  `json:"thumbnail_url"`
	Tags          []string `json:"tags"`
	IsLive        bool    `json:"is_live"`
	IsUpcoming    bool    `json:"is_upcoming"`
	IsMembersOnly bool    `json:"is_members_only"`
}

// ScraperLister invokes a command-line metadata extractor and parses its
// newline-delimited JSON output, applying filters before each record reaches
// yield.
type ScraperLister struct {
	Binary   string
	Executor Executor
}

// NewScraperLister constructs a lister backed by binary (a yt-dlp-class CLI
// metadata extractor invoked in flat-playlist/dump-json mode).
func NewScraperLister(binary string) *ScraperLister {
	return &ScraperLister{Binary: binary, Executor: commandExecutor{}}
}

// List runs the scraper for channelRef and streams each accepted record to
// yield in the order the process emits them. A malformed line or a record
// without a video id is dropped rather than aborting the run; a non-zero
// exit is the only fatal failure.
func (l *ScraperLister) List(ctx context.Context, channelRef string, filters Filters, yield func(SourceMeta) error) error {
	executor := l.Executor
	if executor == nil {
		executor = commandExecutor{}
	}

	args := []string{"--flat-playlist", "--dump-json", "--no-warnings", channelRef}
	output, err := executor.Run(ctx, l.Binary, args)
	if err != nil {
		return fmt.Errorf("lister: scraper: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []SourceMeta
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		meta := parseRecord(line)
		if meta.ExternalID == "" {
			continue
		}
		records = append(records, meta)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("lister: scraper: read output: %w", err)
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

func parseRecord(line string) SourceMeta {
	var raw rawRecord
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return SourceMeta{}
	}
	if raw.VideoID == "" {
		return SourceMeta{}
	}

	meta := SourceMeta{
		ExternalID:    raw.VideoID,
		Title:         raw.Title,
		URL:           raw.URL,
		ChannelName:   raw.ChannelName,
		ChannelURL:    raw.ChannelURL,
		Description:   raw.Description,
		ThumbnailURL:  raw.ThumbnailURL,
		Tags:          raw.Tags,
		IsLive:        raw.IsLive,
		IsUpcoming:    raw.IsUpcoming,
		IsMembersOnly: raw.IsMembersOnly,
		Enriched:      true,
	}
	if raw.DurationS != nil {
		meta.DurationS = *raw.DurationS
	}
	if raw.ViewCount != nil {
		meta.ViewCount = *raw.ViewCount
	}
	if raw.LikeCount != nil {
		meta.LikeCount = *raw.LikeCount
	}
	if raw.CommentCount != nil {
		meta.CommentCount = *raw.CommentCount
	}
	if raw.UploadDate != "" {
		if t, err := time.Parse("20060102", raw.UploadDate); err == nil {
			meta.PublishedAt = t
		}
	}
	if meta.URL == "" {
		meta.URL = "https://www.youtube.com/watch?v=" + raw.VideoID
	}
	if meta.Title == "" || meta.URL == "" {
		meta.Enriched = meta.Title != ""
	}
	return meta
}

func sortNewestFirst(records []SourceMeta) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PublishedAt.After(records[j].PublishedAt)
	})
}
