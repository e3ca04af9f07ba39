package acquisition

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"tryon/internal/domain"
)

// Garment is an entry of the sample clothing gallery.
type Garment struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	NameRu string `json:"name_ru"`
	URL    string `json:"url"`
}

// SampleGarments is the built-in gallery offered next to custom uploads.
var SampleGarments = []Garment{
	{ID: 1, Name: "Red T-Shirt", NameRu: "Красная футболка", URL: "https://via.placeholder.com/300x400/ff6b6b/ffffff.png?text=Red+T-Shirt"},
	{ID: 2, Name: "Blue Shirt", NameRu: "Синяя рубашка", URL: "https://via.placeholder.com/300x400/4ecdc4/ffffff.png?text=Blue+Shirt"},
	{ID: 3, Name: "Black Dress", NameRu: "Черное платье", URL: "https://via.placeholder.com/300x400/2d3436/ffffff.png?text=Black+Dress"},
	{ID: 4, Name: "White Blouse", NameRu: "Белая блузка", URL: "https://via.placeholder.com/300x400/dfe6e9/000000.png?text=White+Blouse"},
}

// Catalog serves the sample gallery and downloads the selected garment.
// Downloaded images are kept for an hour.
type Catalog struct {
	items   []Garment
	client  *http.Client
	decoder Decoder
	fetched *cache.Cache
}

// NewCatalog creates a catalog. A nil client gets a 15 second timeout.
func NewCatalog(items []Garment, client *http.Client, decoder Decoder) *Catalog {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Catalog{
		items:   items,
		client:  client,
		decoder: decoder,
		fetched: cache.New(time.Hour, 10*time.Minute),
	}
}

// List returns the gallery entries.
func (c *Catalog) List() []Garment {
	return append([]Garment(nil), c.items...)
}

// Find looks a garment up by ID.
func (c *Catalog) Find(id int) (Garment, error) {
	for _, g := range c.items {
		if g.ID == id {
			return g, nil
		}
	}
	return Garment{}, fmt.Errorf("garment %d: %w", id, domain.ErrNotFound)
}

// Fetch returns the decoded image of garment id.
func (c *Catalog) Fetch(ctx context.Context, id int) (domain.Image, error) {
	g, err := c.Find(id)
	if err != nil {
		return domain.Image{}, err
	}
	key := strconv.Itoa(id)
	if v, ok := c.fetched.Get(key); ok {
		return v.(domain.Image), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return domain.Image{}, fmt.Errorf("garment %d: build request: %w", id, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: garment %d: download: %v", domain.ErrProviderFailure, id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.Image{}, fmt.Errorf("%w: garment %d: download status %d", domain.ErrProviderFailure, id, resp.StatusCode)
	}

	img, err := c.decoder.Read(resp.Body)
	if err != nil {
		return domain.Image{}, fmt.Errorf("garment %d: %w", id, err)
	}
	c.fetched.SetDefault(key, img)
	return img, nil
}
