package domain

// Availability values of a catalog item.
const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
)

// Attributes are the structured wine attributes used for matching and preference learning.
type Attributes struct {
	Color string `json:"color,omitempty"`
	Grape string `json:"grape,omitempty"`
	Sugar string `json:"sugar,omitempty"`
}

// CatalogItem is a sellable product. The engine never mutates it.
type CatalogItem struct {
	SKU          string     `json:"sku"`
	Name         string     `json:"name"`
	Price        float64    `json:"price"`
	ABV          *float64   `json:"abv,omitempty"`
	CategoryPath string     `json:"category_path,omitempty"`
	Country      string     `json:"country,omitempty"`
	Producer     string     `json:"producer,omitempty"`
	RatingValue  *float64   `json:"rating_value,omitempty"`
	RatingCount  int        `json:"rating_count"`
	Availability string     `json:"availability"`
	VolumeL      *float64   `json:"volume_l,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	ProductURL   string     `json:"product_url,omitempty"`
	Attributes   Attributes `json:"attributes"`
}

// InStock reports whether the item can currently be offered.
func (c *CatalogItem) InStock() bool {
	return c.Availability == AvailabilityInStock
}

// Priced reports whether the item carries a usable price.
func (c *CatalogItem) Priced() bool {
	return c.Price > 0
}
