package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"price-tracker/internal/model"
)

func TestProductClone(t *testing.T) {
	rq := require.New(t)

	target := 50.0
	p := model.Product{
		URL:          "https://example.com/a",
		TargetPrice:  &target,
		PriceHistory: []model.PricePoint{{Price: 100}},
		Users:        []model.User{{Email: "u@x.com"}},
	}

	c := p.Clone()
	c.PriceHistory[0].Price = 1
	c.Users[0].Email = "other@x.com"
	*c.TargetPrice = 10

	rq.Equal(100.0, p.PriceHistory[0].Price)
	rq.Equal("u@x.com", p.Users[0].Email)
	rq.Equal(50.0, *p.TargetPrice)
}

func TestProductApply(t *testing.T) {
	rq := require.New(t)

	p := model.Product{
		ID:           "id-1",
		URL:          "https://example.com/a",
		Title:        "Old",
		IsOutOfStock: true,
		PriceHistory: []model.PricePoint{{Price: 100}},
		Users:        []model.User{{Email: "u@x.com"}},
	}

	p.Apply(model.ScrapeResult{
		URL:          "https://example.com/a?ref=1",
		Title:        "New",
		CurrentPrice: 80,
		IsOutOfStock: false,
	})

	rq.Equal("id-1", p.ID)
	rq.Equal("https://example.com/a", p.URL)
	rq.Equal("New", p.Title)
	rq.Equal(80.0, p.CurrentPrice)
	rq.False(p.IsOutOfStock)
	rq.Len(p.PriceHistory, 1)
	rq.Equal([]string{"u@x.com"}, p.Emails())
	rq.True(p.HasSubscriber("u@x.com"))
	rq.False(p.HasSubscriber("x@x.com"))
}
