package catalog

import (
	"errors"
	"strings"
	"sync"
)

var ErrExists = errors.New("already exists")

type Product struct {
	Name      string  `json:"name"`
	Unit      string  `json:"unit,omitempty"`
	UnitPrice float64 `json:"unit_price"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Store is the in-memory catalog and customer directory the creation
// directive resolves prices and names against.
type Store struct {
	mu        sync.RWMutex
	products  map[string]Product // keyed by lowercased name
	customers map[string]Customer
}

func NewStore() *Store {
	return &Store{
		products:  make(map[string]Product),
		customers: make(map[string]Customer),
	}
}

// Seed loads the default demo catalog.
func Seed(s *Store) *Store {
	for _, p := range []Product{
		{Name: "可口可乐", Unit: "箱", UnitPrice: 3.5},
		{Name: "农夫山泉", Unit: "箱", UnitPrice: 2},
		{Name: "cola", Unit: "case", UnitPrice: 3.5},
		{Name: "spring water", Unit: "bottle", UnitPrice: 2},
	} {
		_ = s.AddProduct(p)
	}
	for _, c := range []Customer{
		{Name: "张三便利店", Phone: "13800138001"},
		{Name: "李四超市", Phone: "13800138002"},
		{Name: "王五批发部", Phone: "13800138003"},
	} {
		_ = s.AddCustomer(c)
	}
	return s
}

func (s *Store) AddProduct(p Product) error {
	key := strings.ToLower(strings.TrimSpace(p.Name))
	if key == "" {
		return errors.New("product name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[key]; ok {
		return ErrExists
	}
	s.products[key] = p
	return nil
}

func (s *Store) AddCustomer(c Customer) error {
	key := strings.ToLower(strings.TrimSpace(c.Name))
	if key == "" {
		return errors.New("customer name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[key]; ok {
		return ErrExists
	}
	s.customers[key] = c
	return nil
}

func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out
}

func (s *Store) Customers() []Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	return out
}

// PriceOf resolves a unit price for a spoken product name: exact match
// first, then substring in either direction (spoken fragments like 可乐
// resolve against the 可口可乐 catalog entry).
func (s *Store) PriceOf(name string) (float64, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[key]; ok {
		return p.UnitPrice, true
	}
	for k, p := range s.products {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return p.UnitPrice, true
		}
	}
	return 0, false
}
