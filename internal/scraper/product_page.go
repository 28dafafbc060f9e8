package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"price-tracker/internal/model"
)

// Selectors are tried in order; the first one yielding a positive price wins.
var (
	currentPriceSelectors = []string{ //nolint:gochecknoglobals
		".priceToPay .a-offscreen",
		".priceToPay span.a-price-whole",
		"#corePrice_feature_div .a-price .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
		"#priceblock_dealprice",
		"#priceblock_ourprice",
		".a-button-selected .a-color-base",
	}

	originalPriceSelectors = []string{ //nolint:gochecknoglobals
		".basisPrice .a-offscreen",
		".a-price.a-text-price .a-offscreen",
		"#listPrice",
		"#priceblock_listprice",
	}

	outOfStockMarkers = []string{"currently unavailable", "out of stock"} //nolint:gochecknoglobals
)

// ProductPageScraper reads marketplace product pages (Amazon-style markup).
type ProductPageScraper struct {
	client *Client
}

func NewProductPageScraper(client *Client) *ProductPageScraper {
	return &ProductPageScraper{client: client}
}

func (s *ProductPageScraper) Scrape(ctx context.Context, url string) (*model.ScrapeResult, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	body, err := s.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	return ParseProductPage(bytes.NewReader(body), url)
}

// ParseProductPage extracts a ScrapeResult from product page HTML. An out of
// stock page without a price yields a result with CurrentPrice 0.
func ParseProductPage(r io.Reader, url string) (*model.ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	currentPrice, currentText := firstPrice(doc, currentPriceSelectors)
	if currentPrice <= 0 {
		if v, ok := doc.Find("meta[property='product:price:amount']").Attr("content"); ok {
			currentPrice, currentText = CleanPrice(v), v
		}
	}
	if currentPrice <= 0 {
		if !outOfStock(doc) {
			return nil, ErrPriceNotFound
		}

		// Unavailable pages often hide the price; report the stock state only.
		return &model.ScrapeResult{
			URL:          url,
			Image:        image(doc),
			Title:        title(doc),
			IsOutOfStock: true,
			Description:  description(doc),
			Category:     category(doc),
		}, nil
	}

	originalPrice, _ := firstPrice(doc, originalPriceSelectors)
	if originalPrice <= 0 {
		originalPrice = currentPrice
	}

	result := &model.ScrapeResult{
		URL:           url,
		Currency:      currency(doc, currentText),
		Image:         image(doc),
		Title:         title(doc),
		CurrentPrice:  currentPrice,
		OriginalPrice: originalPrice,
		DiscountRate:  discountRate(doc, currentPrice, originalPrice),
		IsOutOfStock:  outOfStock(doc),
		Description:   description(doc),
		Category:      category(doc),
	}

	return result, nil
}

func firstPrice(doc *goquery.Document, selectors []string) (float64, string) {
	for _, selector := range selectors {
		var (
			price float64
			text  string
		)

		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = strings.TrimSpace(s.Text())
			price = CleanPrice(text)
			return price <= 0
		})

		if price > 0 {
			return price, text
		}
	}

	return 0, ""
}

func title(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("#productTitle").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func currency(doc *goquery.Document, priceText string) string {
	if c := strings.TrimSpace(doc.Find(".a-price-symbol").First().Text()); c != "" {
		return c
	}

	if i := strings.IndexAny(priceText, "0123456789"); i > 0 {
		if c := strings.TrimSpace(priceText[:i]); c != "" {
			return c
		}
	}

	return "$"
}

// image prefers the high resolution attribute, then src, then the first URL of
// the dynamic image map.
func image(doc *goquery.Document) string {
	img := doc.Find("#imgBlkFront, #landingImage").First()

	for _, attr := range []string{"data-old-hires", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}

	raw := img.AttrOr("data-a-dynamic-image", "")
	if raw == "" {
		return ""
	}

	var images map[string][]int
	if err := jsoniter.UnmarshalFromString(raw, &images); err != nil {
		return ""
	}

	urls := lo.Keys(images)
	slices.Sort(urls)
	if len(urls) == 0 {
		return ""
	}

	return urls[0]
}

func discountRate(doc *goquery.Document, current, original float64) float64 {
	if text := doc.Find(".savingsPercentage").First().Text(); text != "" {
		if rate := CleanPrice(text); rate > 0 {
			return rate
		}
	}

	if original > current && original > 0 {
		return math.Round((original - current) / original * 100)
	}

	return 0
}

func outOfStock(doc *goquery.Document) bool {
	availability := strings.ToLower(doc.Find("#availability").Text())

	return lo.ContainsBy(outOfStockMarkers, func(marker string) bool {
		return strings.Contains(availability, marker)
	})
}

func description(doc *goquery.Document) string {
	var lines []string

	doc.Find("#feature-bullets li span.a-list-item").Each(func(_ int, s *goquery.Selection) {
		if line := strings.TrimSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})

	return strings.Join(lines, "\n")
}

func category(doc *goquery.Document) string {
	crumbs := doc.Find("#wayfinding-breadcrumbs_feature_div li a")
	if crumbs.Length() == 0 {
		return ""
	}

	return strings.TrimSpace(crumbs.Last().Text())
}
