package cartstore

import (
	"github.com/fjod/storefront-cart/internal/domain"
)

// Catalog denormalizes product snapshots onto cart lines. An empty catalog
// accepts every product id and describes it by id alone.
type Catalog struct {
	products map[domain.ProductID]domain.Product
}

func NewCatalog(products []domain.Product) *Catalog {
	c := &Catalog{products: make(map[domain.ProductID]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) Lookup(id domain.ProductID) (domain.Product, bool) {
	if len(c.products) == 0 {
		return domain.Product{ID: id, Name: id.String()}, true
	}
	p, ok := c.products[id]
	return p, ok
}
