package model

// NotificationType selects which email, if any, a pass sends for a product.
type NotificationType string

const (
	NotificationNone         NotificationType = "NONE"
	NotificationWelcome      NotificationType = "WELCOME"
	NotificationLowestPrice  NotificationType = "LOWEST_PRICE"
	NotificationThresholdMet NotificationType = "THRESHOLD_MET"
	NotificationBackInStock  NotificationType = "BACK_IN_STOCK"
)

func (t NotificationType) String() string {
	return string(t)
}
