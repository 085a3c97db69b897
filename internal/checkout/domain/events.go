package domain

// Kafka event payloads, serialized as JSON through the outbox.

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderCreated struct {
	OrderID    int64            `json:"order_id"`
	Code       string           `json:"code"`
	TotalCents int64            `json:"total_cents"`
	Items      []OrderItemEvent `json:"items"`
}

type OrderItemEvent struct {
	ProductName string `json:"product_name"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int    `json:"quantity"`
}

type OrderStatusChanged struct {
	OrderID int64  `json:"order_id"`
	Code    string `json:"code"`
	Status  string `json:"status"`
	Actor   string `json:"actor"`
}
