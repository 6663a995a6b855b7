package chargemaster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/robbie-med/Sjprice/catalog"
	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/logging"
)

// WriteOptions controls the output layout.
type WriteOptions struct {
	// ChunkSize splits the catalog into base-000.json, base-001.json, … of at
	// most ChunkSize items each. Zero writes a single base.json.
	ChunkSize int
}

// Summary lists what Write produced.
type Summary struct {
	Files      []string
	TotalBytes int64
}

// Write publishes res into dir. Payer file names and ids are derived from the
// payer name with catalog.Slugify, so the service can load them back.
func Write(dir string, res *Result, opts WriteOptions) (*Summary, error) {
	if res == nil || res.Catalog == nil {
		return nil, fmt.Errorf("nothing to write")
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("invalid chunk size %d", opts.ChunkSize)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	sum := &Summary{}
	if err := writeCatalog(dir, res.Catalog, opts.ChunkSize, sum); err != nil {
		return nil, err
	}

	directory := make([]entities.PayerFile, 0, len(res.Payers))
	for _, p := range res.Payers {
		slug := catalog.Slugify(p.Name)
		if slug == "" {
			logging.Warn("Skipping payer with an empty slug", "payer", p.Name)
			continue
		}
		name := "payer_" + slug + ".json"
		rates := p.Rates
		if rates == nil {
			rates = map[int]decimal.Decimal{}
		}
		if err := writeJSON(dir, name, rates, sum); err != nil {
			return nil, err
		}
		directory = append(directory, entities.PayerFile{Name: p.Name, File: name, Count: len(p.Rates)})
	}

	if err := writeJSON(dir, "payers.json", directory, sum); err != nil {
		return nil, err
	}

	logging.Info("Chargemaster written", "dir", dir, "files", len(sum.Files), "bytes", sum.TotalBytes)
	return sum, nil
}

func writeCatalog(dir string, c *entities.Catalog, chunkSize int, sum *Summary) error {
	// Chunks are read until the first gap, so leftovers from a larger run
	// would be appended, and a leftover base.json would shadow new chunks.
	if err := removeCatalogFiles(dir); err != nil {
		return err
	}

	if chunkSize == 0 || len(c.Items) <= chunkSize {
		return writeJSON(dir, "base.json", c, sum)
	}

	// The first chunk carries the hospital header, the rest are bare arrays.
	for n, start := 0, 0; start < len(c.Items); n, start = n+1, start+chunkSize {
		end := min(start+chunkSize, len(c.Items))
		name := fmt.Sprintf("base-%03d.json", n)

		var payload any = c.Items[start:end]
		if n == 0 {
			payload = entities.Catalog{Meta: c.Meta, Items: c.Items[start:end]}
		}
		if err := writeJSON(dir, name, payload, sum); err != nil {
			return err
		}
	}
	return nil
}

func removeCatalogFiles(dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "base-*.json"))
	if err != nil {
		return fmt.Errorf("failed to list catalog chunks: %w", err)
	}
	stale = append(stale, filepath.Join(dir, "base.json"))

	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// writeJSON writes compact JSON through a temp file and rename.
func writeJSON(dir, name string, payload any, sum *Summary) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	target := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}

	logging.Debug("Wrote resource", "file", name, "bytes", len(data))
	sum.Files = append(sum.Files, name)
	sum.TotalBytes += int64(len(data))
	return nil
}
