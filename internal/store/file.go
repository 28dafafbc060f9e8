package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"price-tracker/internal/model"
)

const productsFile = "products.json"

// FileStore keeps products in memory and persists them as a JSON document in
// dataDir/products.json after every change.
type FileStore struct {
	mu       sync.RWMutex
	products map[string]*model.Product // url -> product
	dataDir  string
	now      func() time.Time
}

// NewFileStore creates the data directory if needed and loads existing data.
func NewFileStore(dataDir string) (*FileStore, error) {
	s := &FileStore{
		products: make(map[string]*model.Product),
		dataDir:  dataDir,
		now:      time.Now,
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.Load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Load replaces the in-memory state with the content of products.json. A
// missing file is an empty store.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dataDir, productsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read products: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return fmt.Errorf("failed to unmarshal products: %w", err)
	}

	s.products = make(map[string]*model.Product, len(products))
	for i := range products {
		p := products[i]
		if p.URL == "" {
			continue
		}
		if p.ID == "" {
			p.ID = model.NewID()
		}
		p.Users, _ = model.NormalizeUsers(p.Users)
		s.products[p.URL] = &p
	}

	return nil
}

// saveLocked writes the products atomically. Caller holds s.mu.
func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal products: %w", err)
	}

	path := filepath.Join(s.dataDir, productsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write products: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace products: %w", err)
	}

	return nil
}

func (s *FileStore) sortedLocked() []model.Product {
	products := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p.Clone())
	}

	slices.SortFunc(products, func(a, b model.Product) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	return products
}

func (s *FileStore) FetchAll(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedLocked(), nil
}

func (s *FileStore) GetByID(_ context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.byIDLocked(id)
	if p == nil {
		return nil, ErrProductNotFound
	}

	c := p.Clone()
	return &c, nil
}

func (s *FileStore) byIDLocked(id string) *model.Product {
	for _, p := range s.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *FileStore) GetByURL(_ context.Context, url string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[url]
	if !ok {
		return nil, ErrProductNotFound
	}

	c := p.Clone()
	return &c, nil
}

func (s *FileStore) UpsertByURL(_ context.Context, url string, product model.Product) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[url]
	if !ok {
		return nil, ErrProductNotFound
	}

	next := existing.Clone()
	next.Apply(model.ScrapeResult{
		Currency:      product.Currency,
		Image:         product.Image,
		Title:         product.Title,
		CurrentPrice:  product.CurrentPrice,
		OriginalPrice: product.OriginalPrice,
		DiscountRate:  product.DiscountRate,
		IsOutOfStock:  product.IsOutOfStock,
		Description:   product.Description,
		Category:      product.Category,
	})
	next.PriceHistory = slices.Clone(product.PriceHistory)
	next.LowestPrice = product.LowestPrice
	next.HighestPrice = product.HighestPrice
	next.AveragePrice = product.AveragePrice
	next.UpdatedAt = s.now().UTC()

	s.products[url] = &next
	if err := s.saveLocked(); err != nil {
		s.products[url] = existing
		return nil, err
	}

	c := next.Clone()
	return &c, nil
}

func (s *FileStore) TrackProduct(_ context.Context, product model.Product) (*model.Product, bool, error) {
	product, err := prepareNew(product)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.products[product.URL]; ok {
		c := existing.Clone()
		return &c, false, nil
	}

	p := product.Clone()
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = model.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	s.products[p.URL] = &p
	if err := s.saveLocked(); err != nil {
		delete(s.products, p.URL)
		return nil, false, err
	}

	c := p.Clone()
	return &c, true, nil
}

func (s *FileStore) AddSubscriber(_ context.Context, id string, user model.User) (*model.Product, bool, error) {
	user, err := model.NormalizeUser(user)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byIDLocked(id)
	if existing == nil {
		return nil, false, ErrProductNotFound
	}

	if existing.HasSubscriber(user.Email) {
		c := existing.Clone()
		return &c, false, nil
	}

	next := existing.Clone()
	next.Users = append(next.Users, user)

	s.products[next.URL] = &next
	if err := s.saveLocked(); err != nil {
		s.products[next.URL] = existing
		return nil, false, err
	}

	c := next.Clone()
	return &c, true, nil
}

func (s *FileStore) SetTargetPrice(_ context.Context, id string, price *float64) (*model.Product, error) {
	if price != nil && *price < 0 {
		return nil, errors.Join(ErrInvalidProduct, errors.New("target price must not be negative"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byIDLocked(id)
	if existing == nil {
		return nil, ErrProductNotFound
	}

	next := existing.Clone()
	next.TargetPrice = nil
	if price != nil {
		v := *price
		next.TargetPrice = &v
	}

	s.products[next.URL] = &next
	if err := s.saveLocked(); err != nil {
		s.products[next.URL] = existing
		return nil, err
	}

	c := next.Clone()
	return &c, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byIDLocked(id)
	if existing == nil {
		return ErrProductNotFound
	}

	delete(s.products, existing.URL)
	if err := s.saveLocked(); err != nil {
		s.products[existing.URL] = existing
		return err
	}

	return nil
}

func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.products), nil
}

// Close is a no-op; every change is already on disk.
func (s *FileStore) Close() error {
	return nil
}
