package lister

import "fmt"

// Backend identifies which concrete Lister implementation to construct.
type Backend string

const (
	BackendScraper Backend = "scraper"
	BackendAPI     Backend = "api"
)

// Options configures the lister New constructs.
type Options struct {
	Backend       Backend
	ScraperBinary string
	APIBaseURL    string
	APIKey        string
	Cache         Cache
}

// New selects and constructs the configured Lister backend.
func New(opts Options) (Lister, error) {
	switch opts.Backend {
	case BackendAPI:
		if opts.APIBaseURL == "" || opts.APIKey == "" {
			return nil, fmt.Errorf("lister: api backend requires base url and api key")
		}
		return NewAPILister(opts.APIBaseURL, opts.APIKey, opts.Cache), nil
	case BackendScraper, "":
		if opts.ScraperBinary == "" {
			return nil, fmt.Errorf("lister: scraper backend requires a binary")
		}
		return NewScraperLister(opts.ScraperBinary), nil
	default:
		return nil, fmt.Errorf("lister: unknown backend %q", opts.Backend)
	}
}
