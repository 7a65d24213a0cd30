package notify

import (
	"context"
	"strings"

	"digitalstore-backend/pkg/events"
)

// HTTPRoleGrantor - Discord bot servisine rol verme isteği atar
type HTTPRoleGrantor struct {
	baseURL string
}

func NewHTTPRoleGrantor(baseURL string) *HTTPRoleGrantor {
	return &HTTPRoleGrantor{baseURL: strings.TrimRight(baseURL, "/")}
}

type roleRequest struct {
	UserID    uint   `json:"user_id"`
	DiscordID string `json:"discord_id"`
	IsPaid    bool   `json:"is_paid"`
	ProductID uint   `json:"product_id,omitempty"`
}

// HandleOrderCompleted - Discord hesabı bağlı değilse ya da servis adresi
// verilmemişse bir şey yapmaz
func (r *HTTPRoleGrantor) HandleOrderCompleted(_ context.Context, o events.OrderSummary) error {
	if r.baseURL == "" || o.DiscordID == "" {
		return nil
	}
	return postJSON(r.baseURL+"/roles/order-completed", roleRequest{
		UserID:    o.UserID,
		DiscordID: o.DiscordID,
		IsPaid:    o.IsPaid,
		ProductID: o.ProductID,
	})
}
