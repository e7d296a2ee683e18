package domain

// OrderCreated is the payload published on the order-created topic.
// Serialized once into the outbox row; delivery is at-least-once.
type OrderCreated struct {
	OrderID    string      `json:"orderId"`
	CustomerID string      `json:"customerId"`
	Items      []EventItem `json:"items"`
}

type EventItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
