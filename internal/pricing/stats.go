// Package pricing derives price statistics and notification decisions from a
// product's stored state and a fresh scrape.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"price-tracker/internal/model"
)

var ErrEmptyHistory = errors.New("pricing: empty price history")

// Summary holds the derived statistics of a price history.
type Summary struct {
	Lowest  float64
	Highest float64
	Average float64
}

// Summarize computes lowest, highest and average price of a non-empty history.
func Summarize(history []model.PricePoint) (Summary, error) {
	if len(history) == 0 {
		return Summary{}, ErrEmptyHistory
	}

	lowest := history[0].Price
	highest := history[0].Price
	sum := decimal.Zero

	for _, p := range history {
		if p.Price < lowest {
			lowest = p.Price
		}
		if p.Price > highest {
			highest = p.Price
		}
		sum = sum.Add(decimal.NewFromFloat(p.Price))
	}

	avg, _ := sum.Div(decimal.NewFromInt(int64(len(history)))).Round(2).Float64()

	return Summary{
		Lowest:  lowest,
		Highest: highest,
		Average: avg,
	}, nil
}

func Lowest(history []model.PricePoint) (float64, error) {
	s, err := Summarize(history)
	return s.Lowest, err
}

func Highest(history []model.PricePoint) (float64, error) {
	s, err := Summarize(history)
	return s.Highest, err
}

// Average is the arithmetic mean rounded to 2 decimal places.
func Average(history []model.PricePoint) (float64, error) {
	s, err := Summarize(history)
	return s.Average, err
}

// Trim keeps the newest limit entries. limit <= 0 means unbounded.
func Trim(history []model.PricePoint, limit int) []model.PricePoint {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
