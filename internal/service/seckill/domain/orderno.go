// internal/service/seckill/domain/orderno.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNo generates an order reference: second-resolution timestamp, a user
// suffix for readable affinity, and 8 hex characters of UUID entropy. The
// timestamp keeps references roughly sortable; the entropy makes a same-second
// collision for one user negligible. The unique constraint on the orders table
// is the final backstop either way.
func NewOrderNo(userID string) string {
	ts := time.Now().Format("20060102150405")
	suffix := userID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	entropy := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return ts + suffix + entropy
}
