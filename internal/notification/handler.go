package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/card-shop/internal/email"
	"github.com/example/card-shop/internal/events"
	"github.com/example/card-shop/internal/infrastructure/store"
)

// Handler processes events for sending notifications
type Handler struct {
	emailService *email.Service
	store        store.Store
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, st store.Store) *Handler {
	return &Handler{
		emailService: emailSvc,
		store:        st,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	if env.Type == events.TypeOrderPlaced {
		return h.handleOrderPlaced(ctx, env)
	}

	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, env events.Envelope) error {
	var e events.OrderPlaced
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.Code, e.UserID)

	u, err := h.store.GetUser(ctx, e.UserID)
	if err != nil {
		log.Printf("[Notifier] Error getting user %s: %v", e.UserID, err)
		return nil
	}

	emailItems := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		productName := item.ProductID
		if p, err := h.store.GetProduct(ctx, item.ProductID); err == nil {
			productName = p.Name
		}

		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      productName,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	if err := h.emailService.SendOrderConfirmation(u.Email, e.Code, e.Total, emailItems); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", u.Email, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", u.Email, e.Code)
	return nil
}
