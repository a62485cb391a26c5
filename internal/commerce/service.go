package commerce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoIntegration indicates the bot has no active commerce integration.
var ErrNoIntegration = errors.New("no active commerce integration")

// Integration is a stored per-bot commerce credential.
type Integration struct {
	ID          string
	BotID       string
	StoreDomain string
	AccessToken string
	Active      bool
}

// IntegrationSource loads the active integration for a bot.
type IntegrationSource interface {
	GetActive(ctx context.Context, botID string) (Integration, error)
}

// API is the commerce lookup surface; *Client is the production
// implementation.
type API interface {
	LookupOrder(ctx context.Context, integration Integration, orderNumber, email string) (*Order, error)
	SearchProducts(ctx context.Context, integration Integration, query string) ([]Product, error)
}

// Service turns a detected intent into a grounding context block.
type Service struct {
	integrations IntegrationSource
	api          API
	logger       *slog.Logger
}

// NewService creates a commerce context service.
func NewService(log *slog.Logger, integrations IntegrationSource, api API) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		integrations: integrations,
		api:          api,
		logger:       log.With(slog.String("service", "commerce")),
	}
}

// BuildContext performs the lookup for a detected intent and formats the
// result. It returns "" whenever nothing useful can be added: no integration,
// no intent, lookup failure, or no match. The visitor never sees an error
// from this path.
func (s *Service) BuildContext(ctx context.Context, botID string, intent Intent, visitorEmail string) string {
	if intent.Type == IntentNone {
		return ""
	}
	integration, err := s.integrations.GetActive(ctx, botID)
	if err != nil {
		if !errors.Is(err, ErrNoIntegration) {
			s.logger.Warn("commerce integration lookup failed",
				slog.String("bot_id", botID), slog.Any("error", err))
		}
		return ""
	}

	switch intent.Type {
	case IntentOrder:
		if intent.Query == "" && strings.TrimSpace(visitorEmail) == "" {
			return ""
		}
		order, err := s.api.LookupOrder(ctx, integration, intent.Query, visitorEmail)
		if err != nil {
			s.logger.Debug("order lookup returned nothing",
				slog.String("bot_id", botID), slog.Any("error", err))
			return ""
		}
		return formatOrder(order)
	case IntentProduct:
		if intent.Query == "" {
			return ""
		}
		products, err := s.api.SearchProducts(ctx, integration, intent.Query)
		if err != nil || len(products) == 0 {
			if err != nil {
				s.logger.Debug("product search failed",
					slog.String("bot_id", botID), slog.Any("error", err))
			}
			return ""
		}
		return formatProducts(products)
	}
	return ""
}

func formatOrder(order *Order) string {
	var b strings.Builder
	b.WriteString("ORDER INFORMATION:\n")
	fmt.Fprintf(&b, "Order %s: payment %s", order.Name, valueOr(order.FinancialStatus, "unknown"))
	fmt.Fprintf(&b, ", fulfillment %s\n", valueOr(order.FulfillmentStatus, "unfulfilled"))
	for _, item := range order.LineItems {
		fmt.Fprintf(&b, "- %dx %s\n", item.Quantity, item.Title)
	}
	if order.TotalPrice != "" {
		fmt.Fprintf(&b, "Total: %s %s\n", order.TotalPrice, order.Currency)
	}
	if addr := order.ShippingAddress; addr != nil && (addr.City != "" || addr.Country != "") {
		fmt.Fprintf(&b, "Ships to: %s, %s\n", addr.City, addr.Country)
	}
	for _, f := range order.Fulfillments {
		if f.TrackingURL != "" {
			fmt.Fprintf(&b, "Tracking: %s\n", f.TrackingURL)
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProducts(products []Product) string {
	var b strings.Builder
	b.WriteString("PRODUCT INFORMATION:\n")
	for _, p := range products {
		availability := "out of stock"
		if p.InStock {
			availability = "in stock"
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", p.Title, valueOr(p.Price, "price unavailable"), availability)
	}
	return strings.TrimRight(b.String(), "\n")
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
