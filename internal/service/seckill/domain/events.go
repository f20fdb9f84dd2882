// internal/service/seckill/domain/events.go
package domain

import "time"

// OrderExpiryEvent is the payload of the payment-expiry task. It is delivered
// to the expiry consumer only after its delay level's TTL has elapsed.
type OrderExpiryEvent struct {
	OrderNo   string    `json:"orderNo"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationEvent goes to the notifications topic; downstream delivery
// (push, sms) is somebody else's problem.
type NotificationEvent struct {
	UserID  string `json:"userId"`
	OrderNo string `json:"orderNo"`
	Message string `json:"message"`
}
