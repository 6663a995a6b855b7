package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/pricing"
)

const (
	baseFile   = "base.json"
	payersFile = "payers.json"
	maxChunks  = 1000
)

// chunkFile names the n-th catalog chunk: base-000.json, base-001.json, …
func chunkFile(n int) string {
	return fmt.Sprintf("base-%03d.json", n)
}

// fetcher opens a named resource. It returns errNotFound when the resource
// does not exist.
type fetcher interface {
	open(ctx context.Context, name string) (io.ReadCloser, error)
	describe(name string) string
}

// Source loads all published resources through a fetcher.
type Source struct {
	f fetcher
}

// Compile-time checks
var (
	_ interfaces.CatalogSource   = (*Source)(nil)
	_ interfaces.PayerDirectory  = (*Source)(nil)
	_ interfaces.PayerRateSource = (*Source)(nil)
)

// NewDirSource reads resources from a local directory.
func NewDirSource(dir string) *Source {
	return &Source{f: dirFetcher{dir: dir}}
}

// NewHTTPSource fetches resources relative to baseURL.
func NewHTTPSource(baseURL string, client *http.Client) *Source {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Source{f: httpFetcher{base: strings.TrimRight(baseURL, "/"), client: client}}
}

// FetchCatalog loads base.json, or when it is absent the numbered chunks
// base-000.json, base-001.json, … concatenated in order.
func (s *Source) FetchCatalog(ctx context.Context) (*entities.Catalog, error) {
	meta, items, err := s.readChunk(ctx, baseFile)
	if err == nil {
		return Assemble(meta, items), nil
	}
	if !errors.Is(err, errNotFound) {
		return nil, &LoadError{Resource: "catalog", Locator: s.f.describe(baseFile), Err: err}
	}

	var chunks [][]entities.Item
	for n := 0; n < maxChunks; n++ {
		name := chunkFile(n)
		chunkMeta, chunkItems, err := s.readChunk(ctx, name)
		if errors.Is(err, errNotFound) {
			break
		}
		if err != nil {
			return nil, &LoadError{Resource: "catalog", Locator: s.f.describe(name), Err: err}
		}
		if meta.HospitalName == "" {
			meta = chunkMeta
		}
		chunks = append(chunks, chunkItems)
	}

	if len(chunks) == 0 {
		return nil, &LoadError{Resource: "catalog", Locator: s.f.describe(baseFile), Err: errNotFound}
	}

	logging.Debug("Assembled catalog from chunks", "chunks", len(chunks))
	return Assemble(meta, chunks...), nil
}

func (s *Source) readChunk(ctx context.Context, name string) (entities.Meta, []entities.Item, error) {
	rc, err := s.f.open(ctx, name)
	if err != nil {
		return entities.Meta{}, nil, err
	}
	defer closeQuietly(rc)
	return DecodeChunk(rc)
}

// FetchPayers loads payers.json.
func (s *Source) FetchPayers(ctx context.Context) ([]entities.Payer, error) {
	rc, err := s.f.open(ctx, payersFile)
	if err != nil {
		return nil, &LoadError{Resource: "payers", Locator: s.f.describe(payersFile), Err: err}
	}
	defer closeQuietly(rc)

	payers, err := DecodePayers(rc)
	if err != nil {
		return nil, &LoadError{Resource: "payers", Locator: s.f.describe(payersFile), Err: err}
	}
	return payers, nil
}

// FetchRates loads the rate table named by a payer's data locator.
func (s *Source) FetchRates(ctx context.Context, locator string) (*pricing.RateTable, error) {
	if err := validateLocator(locator); err != nil {
		return nil, &LoadError{Resource: "rates", Locator: locator, Err: err}
	}

	rc, err := s.f.open(ctx, locator)
	if err != nil {
		return nil, &LoadError{Resource: "rates", Locator: s.f.describe(locator), Err: err}
	}
	defer closeQuietly(rc)

	table, err := DecodeRateTable(rc)
	if err != nil {
		return nil, &LoadError{Resource: "rates", Locator: s.f.describe(locator), Err: err}
	}
	return table, nil
}

// validateLocator only allows plain file names inside the data root.
func validateLocator(locator string) error {
	if locator == "" {
		return fmt.Errorf("empty locator")
	}
	if strings.ContainsAny(locator, `/\`) || strings.Contains(locator, "..") {
		return fmt.Errorf("invalid locator: %s", locator)
	}
	return nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Warn("Failed to close resource", "error", err)
	}
}

type dirFetcher struct {
	dir string
}

func (d dirFetcher) open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotFound
	}
	return f, err
}

func (d dirFetcher) describe(name string) string {
	return filepath.Join(d.dir, name)
}

type httpFetcher struct {
	base   string
	client *http.Client
}

func (h httpFetcher) open(ctx context.Context, name string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.describe(name), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		closeQuietly(resp.Body)
		return nil, errNotFound
	case resp.StatusCode != http.StatusOK:
		closeQuietly(resp.Body)
		return nil, fmt.Errorf("download %s: unexpected status %d", name, resp.StatusCode)
	}
	return resp.Body, nil
}

func (h httpFetcher) describe(name string) string {
	u, err := url.Parse(h.base)
	if err != nil {
		return h.base + "/" + name
	}
	u.Path = path.Join(u.Path, name)
	return u.String()
}
