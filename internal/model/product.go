package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Product is a tracked product page together with its price history and subscribers.
type Product struct {
	ID            string   `json:"id" db:"id"`
	URL           string   `json:"url" db:"url"`
	Currency      string   `json:"currency" db:"currency"`
	Image         string   `json:"image" db:"image"`
	Title         string   `json:"title" db:"title"`
	CurrentPrice  float64  `json:"currentPrice" db:"current_price"`
	OriginalPrice float64  `json:"originalPrice" db:"original_price"`
	DiscountRate  float64  `json:"discountRate" db:"discount_rate"`
	IsOutOfStock  bool     `json:"isOutOfStock" db:"is_out_of_stock"`
	Description   string   `json:"description" db:"description"`
	Category      string   `json:"category" db:"category"`
	TargetPrice   *float64 `json:"targetPrice,omitempty" db:"target_price"` // nil = no threshold alert

	// Derived from PriceHistory on every pass
	LowestPrice  float64 `json:"lowestPrice" db:"lowest_price"`
	HighestPrice float64 `json:"highestPrice" db:"highest_price"`
	AveragePrice float64 `json:"averagePrice" db:"average_price"`

	PriceHistory []PricePoint `json:"priceHistory"`
	Users        []User       `json:"users"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// PricePoint is one observed price, oldest first in Product.PriceHistory.
type PricePoint struct {
	Price float64   `json:"price"`
	Date  time.Time `json:"date"`
}

// User is a subscriber of a product.
type User struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty" validate:"max=120"`
}

// ScrapeResult is the current state of a product page as read by a scraper.
type ScrapeResult struct {
	URL           string   `json:"url"`
	Currency      string   `json:"currency"`
	Image         string   `json:"image"`
	Title         string   `json:"title"`
	CurrentPrice  float64  `json:"currentPrice"`
	OriginalPrice float64  `json:"originalPrice"`
	DiscountRate  float64  `json:"discountRate"`
	IsOutOfStock  bool     `json:"isOutOfStock"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
}

// NewID creates a product identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy; slices and the target price are not shared.
func (p Product) Clone() Product {
	c := p
	c.PriceHistory = slices.Clone(p.PriceHistory)
	c.Users = slices.Clone(p.Users)
	if p.TargetPrice != nil {
		v := *p.TargetPrice
		c.TargetPrice = &v
	}
	return c
}

// Emails returns the subscriber addresses in subscription order.
func (p Product) Emails() []string {
	emails := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		emails = append(emails, u.Email)
	}
	return emails
}

// HasSubscriber reports whether email is already subscribed.
func (p Product) HasSubscriber(email string) bool {
	return slices.ContainsFunc(p.Users, func(u User) bool {
		return u.Email == email
	})
}

// Apply copies the scraped fields onto the product, keeping identity, history and users.
func (p *Product) Apply(r ScrapeResult) {
	p.Currency = r.Currency
	p.Image = r.Image
	p.Title = r.Title
	p.CurrentPrice = r.CurrentPrice
	p.OriginalPrice = r.OriginalPrice
	p.DiscountRate = r.DiscountRate
	p.IsOutOfStock = r.IsOutOfStock
	p.Description = r.Description
	p.Category = r.Category
}
