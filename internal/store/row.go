package store

import (
	"database/sql"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"price-tracker/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// productRow maps a row of the products table.
type productRow struct {
	ID            string          `db:"id"`
	URL           string          `db:"url"`
	Currency      string          `db:"currency"`
	Image         string          `db:"image"`
	Title         string          `db:"title"`
	CurrentPrice  float64         `db:"current_price"`
	OriginalPrice float64         `db:"original_price"`
	DiscountRate  float64         `db:"discount_rate"`
	IsOutOfStock  bool            `db:"is_out_of_stock"`
	Description   string          `db:"description"`
	Category      string          `db:"category"`
	TargetPrice   sql.NullFloat64 `db:"target_price"`
	LowestPrice   float64         `db:"lowest_price"`
	HighestPrice  float64         `db:"highest_price"`
	AveragePrice  float64         `db:"average_price"`
	PriceHistory  string          `db:"price_history"`
	Users         string          `db:"users"`
	CreatedAt     int64           `db:"created_at"`
	UpdatedAt     int64           `db:"updated_at"`
}

const productColumns = `id, url, currency, image, title, current_price, original_price,
	discount_rate, is_out_of_stock, description, category, target_price,
	lowest_price, highest_price, average_price, price_history, users,
	created_at, updated_at`

func fromProduct(p model.Product) (productRow, error) {
	history := p.PriceHistory
	if history == nil {
		history = []model.PricePoint{}
	}
	historyJSON, err := json.MarshalToString(history)
	if err != nil {
		return productRow{}, fmt.Errorf("marshal price history: %w", err)
	}

	users := p.Users
	if users == nil {
		users = []model.User{}
	}
	usersJSON, err := json.MarshalToString(users)
	if err != nil {
		return productRow{}, fmt.Errorf("marshal users: %w", err)
	}

	row := productRow{
		ID:            p.ID,
		URL:           p.URL,
		Currency:      p.Currency,
		Image:         p.Image,
		Title:         p.Title,
		CurrentPrice:  p.CurrentPrice,
		OriginalPrice: p.OriginalPrice,
		DiscountRate:  p.DiscountRate,
		IsOutOfStock:  p.IsOutOfStock,
		Description:   p.Description,
		Category:      p.Category,
		LowestPrice:   p.LowestPrice,
		HighestPrice:  p.HighestPrice,
		AveragePrice:  p.AveragePrice,
		PriceHistory:  historyJSON,
		Users:         usersJSON,
		CreatedAt:     p.CreatedAt.UnixMilli(),
		UpdatedAt:     p.UpdatedAt.UnixMilli(),
	}

	if p.TargetPrice != nil {
		row.TargetPrice = sql.NullFloat64{Float64: *p.TargetPrice, Valid: true}
	}

	return row, nil
}

func (r productRow) toDomain() (model.Product, error) {
	p := model.Product{
		ID:            r.ID,
		URL:           r.URL,
		Currency:      r.Currency,
		Image:         r.Image,
		Title:         r.Title,
		CurrentPrice:  r.CurrentPrice,
		OriginalPrice: r.OriginalPrice,
		DiscountRate:  r.DiscountRate,
		IsOutOfStock:  r.IsOutOfStock,
		Description:   r.Description,
		Category:      r.Category,
		LowestPrice:   r.LowestPrice,
		HighestPrice:  r.HighestPrice,
		AveragePrice:  r.AveragePrice,
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(r.UpdatedAt).UTC(),
	}

	if r.TargetPrice.Valid {
		v := r.TargetPrice.Float64
		p.TargetPrice = &v
	}

	if err := json.UnmarshalFromString(r.PriceHistory, &p.PriceHistory); err != nil {
		return model.Product{}, fmt.Errorf("unmarshal price history of %s: %w", r.URL, err)
	}
	if err := json.UnmarshalFromString(r.Users, &p.Users); err != nil {
		return model.Product{}, fmt.Errorf("unmarshal users of %s: %w", r.URL, err)
	}

	return p, nil
}
