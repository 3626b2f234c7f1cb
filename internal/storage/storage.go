package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maltedev/seller-scraper/internal/models"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrMissingKey   = errors.New("product link needs an ASIN or URL")
	ErrLinkNotFound = errors.New("link not found")
)

// ProductLink tracks the seller-extraction progress of one product.
type ProductLink struct {
	ASIN       string    `json:"asin"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Price      string    `json:"price"`
	SellerName string    `json:"seller_name,omitempty"`
	SellerURL  string    `json:"seller_url,omitempty"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	AddedAt    time.Time `json:"added_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Error      string    `json:"error,omitempty"`
}

func LinkFromProduct(p *models.Product) *ProductLink {
	return &ProductLink{
		ASIN:  p.ASIN,
		URL:   p.URL,
		Title: p.Title,
		Price: p.Price,
	}
}

// Key identifies the link: the ASIN when known, the URL otherwise.
func (l *ProductLink) Key() string {
	if l.ASIN != "" {
		return l.ASIN
	}
	return l.URL
}

// LinkStorage is a JSON file of product links, rewritten atomically on
// every change so an interrupted crawl can resume.
type LinkStorage struct {
	mu       sync.RWMutex
	links    map[string]*ProductLink
	filename string
}

func NewLinkStorage(filename string) (*LinkStorage, error) {
	ls := &LinkStorage{
		links:    make(map[string]*ProductLink),
		filename: filename,
	}

	if err := ls.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", filename, err)
	}

	return ls, nil
}

// Add registers a link unless it is already known. It reports whether the
// link was new.
func (ls *LinkStorage) Add(link *ProductLink) (bool, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	added, err := ls.add(link)
	if err != nil || !added {
		return added, err
	}
	return true, ls.save()
}

func (ls *LinkStorage) AddBatch(links []*ProductLink) (int, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	added := 0
	for _, link := range links {
		ok, err := ls.add(link)
		if err != nil {
			continue
		}
		if ok {
			added++
		}
	}

	if added == 0 {
		return 0, nil
	}
	return added, ls.save()
}

func (ls *LinkStorage) add(link *ProductLink) (bool, error) {
	key := link.Key()
	if key == "" {
		return false, ErrMissingKey
	}
	if _, exists := ls.links[key]; exists {
		return false, nil
	}

	now := time.Now()
	link.AddedAt = now
	link.UpdatedAt = now
	if link.Status == "" {
		link.Status = StatusPending
	}

	ls.links[key] = link
	return true, nil
}

func (ls *LinkStorage) Get(key string) (*ProductLink, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	link, exists := ls.links[key]
	if !exists {
		return nil, false
	}
	cp := *link
	return &cp, true
}

// IsDone reports whether the link already completed in this or an earlier run.
func (ls *LinkStorage) IsDone(key string) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	link, exists := ls.links[key]
	return exists && link.Status == StatusCompleted
}

func (ls *LinkStorage) GetByStatus(status Status) []*ProductLink {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var out []*ProductLink
	for _, link := range ls.links {
		if link.Status == status {
			cp := *link
			out = append(out, &cp)
		}
	}
	return out
}

func (ls *LinkStorage) GetPending() []*ProductLink {
	return ls.GetByStatus(StatusPending)
}

func (ls *LinkStorage) UpdateStatus(key string, status Status, errorMsg string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	link, exists := ls.links[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrLinkNotFound, key)
	}

	link.Status = status
	link.UpdatedAt = time.Now()
	link.Error = errorMsg
	if status == StatusProcessing {
		link.Attempts++
	}

	return ls.save()
}

// Complete marks the link done and records the seller it resolved to.
func (ls *LinkStorage) Complete(key, sellerName, sellerURL string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	link, exists := ls.links[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrLinkNotFound, key)
	}

	link.Status = StatusCompleted
	link.SellerName = sellerName
	link.SellerURL = sellerURL
	link.Error = ""
	link.UpdatedAt = time.Now()

	return ls.save()
}

func (ls *LinkStorage) GetStats() map[string]int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	stats := make(map[string]int)
	for _, link := range ls.links {
		stats[string(link.Status)]++
	}
	stats["total"] = len(ls.links)
	return stats
}

func (ls *LinkStorage) save() error {
	data, err := json.MarshalIndent(ls.links, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode links: %w", err)
	}

	if dir := filepath.Dir(ls.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmpFile := ls.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write links: %w", err)
	}

	return os.Rename(tmpFile, ls.filename)
}

func (ls *LinkStorage) Load() error {
	data, err := os.ReadFile(ls.filename)
	if err != nil {
		return err
	}

	links := make(map[string]*ProductLink)
	if err := json.Unmarshal(data, &links); err != nil {
		return fmt.Errorf("failed to decode links: %w", err)
	}

	ls.mu.Lock()
	ls.links = links
	ls.mu.Unlock()
	return nil
}
