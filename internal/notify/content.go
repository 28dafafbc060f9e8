package notify

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"price-tracker/internal/model"
)

const (
	brandName   = "PriceWatch"
	titleMaxLen = 20
)

var ErrNoContent = errors.New("no content for notification type")

// ProductInfo is the product data an email is rendered from.
type ProductInfo struct {
	Title    string
	URL      string
	Category string
}

// EmailContent is a rendered notification.
type EmailContent struct {
	Subject string
	Body    string
	// Link is the product page the notification points to.
	Link string
}

func InfoFromProduct(p model.Product) ProductInfo {
	return ProductInfo{
		Title:    p.Title,
		URL:      p.URL,
		Category: p.Category,
	}
}

const emailTemplates = `
{{define "WELCOME"}}<div>
  <h2>Welcome to {{.Brand}} 🚀</h2>
  <p>You are now tracking {{.Title}}.</p>
  <p>Here's an example of how you'll receive updates:</p>
  <div style="border: 1px solid #ccc; padding: 10px; background-color: #f8f8f8;">
    <h3>{{.Title}} is back in stock!</h3>
    <p>We're excited to let you know that {{.Title}} is now back in stock.</p>
    <p>Don't miss out - <a href="{{.URL}}" target="_blank" rel="noopener noreferrer">buy it now</a>!</p>
  </div>
  <p>Stay tuned for more updates on {{.Title}} and other products you're tracking.</p>
</div>{{end}}
{{define "BACK_IN_STOCK"}}<div>
  <h4>Hey, {{.Title}} is now restocked! Grab yours before they run out again!</h4>
  <p>See the product <a href="{{.URL}}" target="_blank" rel="noopener noreferrer">here</a>.</p>
</div>{{end}}
{{define "LOWEST_PRICE"}}<div>
  <h4>Hey, {{.Title}} has reached its lowest price ever!!</h4>
  <p>Grab the product <a href="{{.URL}}" target="_blank" rel="noopener noreferrer">here</a> now.</p>
</div>{{end}}
{{define "THRESHOLD_MET"}}<div>
  <h4>Hey, {{.Title}} is now at or below your target price!</h4>
  <p>Grab it right away from <a href="{{.URL}}" target="_blank" rel="noopener noreferrer">here</a>.</p>
</div>{{end}}`

var bodyTemplates = template.Must(template.New("emails").Parse(emailTemplates)) //nolint:gochecknoglobals

// Render builds the subject and HTML body for t. NONE has no content.
func Render(info ProductInfo, t model.NotificationType) (EmailContent, error) {
	short := shortenTitle(info.Title)

	var subject string
	switch t {
	case model.NotificationWelcome:
		subject = "Welcome to Price Tracking for " + short
	case model.NotificationBackInStock:
		subject = short + " is now back in stock!"
	case model.NotificationLowestPrice:
		subject = "Lowest Price Alert for " + short
	case model.NotificationThresholdMet:
		subject = "Target Price Alert for " + short
	default:
		return EmailContent{}, fmt.Errorf("%w: %s", ErrNoContent, t)
	}

	var body bytes.Buffer
	err := bodyTemplates.ExecuteTemplate(&body, string(t), struct {
		ProductInfo
		Brand string
	}{info, brandName})
	if err != nil {
		return EmailContent{}, fmt.Errorf("render %s: %w", t, err)
	}

	return EmailContent{
		Subject: subject,
		Body:    body.String(),
		Link:    info.URL,
	}, nil
}

func shortenTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleMaxLen {
		return title
	}
	return string(runes[:titleMaxLen]) + "..."
}
