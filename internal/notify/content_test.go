package notify_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"price-tracker/internal/model"
	"price-tracker/internal/notify"
)

func TestRender(t *testing.T) {
	info := notify.ProductInfo{
		Title:    "Noise Cancelling Headphones, Black",
		URL:      "https://shop.test/dp/1",
		Category: "Headphones",
	}

	tests := []struct {
		name        string
		typ         model.NotificationType
		wantSubject string
		wantBody    string
	}{
		{
			name:        "welcome",
			typ:         model.NotificationWelcome,
			wantSubject: "Welcome to Price Tracking for Noise Cancelling He...",
			wantBody:    "You are now tracking Noise Cancelling Headphones, Black.",
		},
		{
			name:        "back in stock",
			typ:         model.NotificationBackInStock,
			wantSubject: "Noise Cancelling He... is now back in stock!",
			wantBody:    "is now restocked!",
		},
		{
			name:        "lowest price",
			typ:         model.NotificationLowestPrice,
			wantSubject: "Lowest Price Alert for Noise Cancelling He...",
			wantBody:    "has reached its lowest price ever!!",
		},
		{
			name:        "threshold met",
			typ:         model.NotificationThresholdMet,
			wantSubject: "Target Price Alert for Noise Cancelling He...",
			wantBody:    "at or below your target price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rq := require.New(t)

			content, err := notify.Render(info, tt.typ)
			rq.NoError(err)
			rq.Equal(tt.wantSubject, content.Subject)
			rq.Contains(content.Body, tt.wantBody)
			rq.Contains(content.Body, `href="https://shop.test/dp/1"`)
			rq.Equal("https://shop.test/dp/1", content.Link)
		})
	}
}

func TestRenderShortTitleIsKept(t *testing.T) {
	content, err := notify.Render(notify.ProductInfo{Title: "Desk Lamp", URL: "https://shop.test/l"}, model.NotificationLowestPrice)
	require.NoError(t, err)
	require.Equal(t, "Lowest Price Alert for Desk Lamp", content.Subject)
}

func TestRenderEscapesTitle(t *testing.T) {
	content, err := notify.Render(notify.ProductInfo{Title: "<script>x</script>", URL: "https://shop.test/x"}, model.NotificationBackInStock)
	require.NoError(t, err)
	require.NotContains(t, content.Body, "<script>")
	require.Contains(t, content.Body, "&lt;script&gt;")
}

func TestRenderNone(t *testing.T) {
	_, err := notify.Render(notify.ProductInfo{Title: "A"}, model.NotificationNone)
	require.ErrorIs(t, err, notify.ErrNoContent)
}

func TestInfoFromProduct(t *testing.T) {
	info := notify.InfoFromProduct(model.Product{Title: "A", URL: "u", Category: "c", CurrentPrice: 3})
	require.Equal(t, notify.ProductInfo{Title: "A", URL: "u", Category: "c"}, info)
}
