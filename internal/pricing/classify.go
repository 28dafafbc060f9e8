package pricing

import "price-tracker/internal/model"

// Classify picks the single notification for a pass. Conditions are checked in
// priority order: lowest price, target threshold, back in stock. A scrape
// without a price (0) never matches a price condition.
func Classify(scraped model.ScrapeResult, stored model.Product) model.NotificationType {
	hasPrice := scraped.CurrentPrice > 0

	if hasPrice && len(stored.PriceHistory) > 0 && scraped.CurrentPrice < stored.LowestPrice {
		return model.NotificationLowestPrice
	}

	if hasPrice && stored.TargetPrice != nil && scraped.CurrentPrice <= *stored.TargetPrice {
		return model.NotificationThresholdMet
	}

	if stored.IsOutOfStock && !scraped.IsOutOfStock {
		return model.NotificationBackInStock
	}

	return model.NotificationNone
}
