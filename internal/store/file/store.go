// Package file persists pipeline output as JSON documents on disk.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldstone/shopsync/internal/catalog"
)

const (
	productsFile      = "products.json"
	failedPagesFile   = "failed_pages.json"
	failedUploadsFile = "failed_uploads.json"
)

// Store reads and writes run artifacts under one base directory.
type Store struct {
	dir string
}

// New creates the base directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SaveProducts appends newly extracted products to the existing product file.
func (s *Store) SaveProducts(products []catalog.ProductRecord) error {
	existing, err := s.LoadProducts()
	if err != nil {
		return err
	}
	return s.write(productsFile, append(existing, products...))
}

// LoadProducts returns the persisted product set; a missing file is empty.
func (s *Store) LoadProducts() ([]catalog.ProductRecord, error) {
	var products []catalog.ProductRecord
	if err := s.read(productsFile, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// SaveFailedPages overwrites the failure set with whatever remains, deleting
// the file outright when the set is empty.
func (s *Store) SaveFailedPages(pages []catalog.PageRecord) error {
	if len(pages) == 0 {
		return s.remove(failedPagesFile)
	}
	return s.write(failedPagesFile, pages)
}

// LoadFailedPages returns the persisted failure set; a missing file is empty.
func (s *Store) LoadFailedPages() ([]catalog.PageRecord, error) {
	var pages []catalog.PageRecord
	if err := s.read(failedPagesFile, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// SaveFailedUploads overwrites the upload failure set, deleting the file when
// the set is empty.
func (s *Store) SaveFailedUploads(failures []catalog.UploadFailure) error {
	if len(failures) == 0 {
		return s.remove(failedUploadsFile)
	}
	return s.write(failedUploadsFile, failures)
}

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Store) read(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Store) remove(name string) error {
	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
