package commerce

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeIntegrationSource struct {
	integration Integration
	err         error
}

func (f *fakeIntegrationSource) GetActive(ctx context.Context, botID string) (Integration, error) {
	if f.err != nil {
		return Integration{}, f.err
	}
	return f.integration, nil
}

type fakeAPI struct {
	order       *Order
	orderErr    error
	products    []Product
	productsErr error
}

func (f *fakeAPI) LookupOrder(ctx context.Context, integration Integration, orderNumber, email string) (*Order, error) {
	return f.order, f.orderErr
}

func (f *fakeAPI) SearchProducts(ctx context.Context, integration Integration, query string) ([]Product, error) {
	return f.products, f.productsErr
}

func activeIntegration() Integration {
	return Integration{ID: "int-1", BotID: "bot-1", StoreDomain: "shop.example.com", AccessToken: "tok", Active: true}
}

func TestBuildContextFormatsOrder(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{order: &Order{
		Name:              "#1042",
		FinancialStatus:   "paid",
		FulfillmentStatus: "fulfilled",
		TotalPrice:        "59.00",
		Currency:          "EUR",
		LineItems:         []LineItem{{Title: "Blue Hoodie", Quantity: 1}},
		ShippingAddress:   &Address{City: "Berlin", Country: "Germany"},
		Fulfillments:      []Fulfilled{{TrackingURL: "https://t.example/abc"}},
	}}
	service := NewService(nil, &fakeIntegrationSource{integration: activeIntegration()}, api)

	block := service.BuildContext(context.Background(), "bot-1", Intent{Type: IntentOrder, Query: "#1042"}, "")
	for _, want := range []string{"ORDER INFORMATION", "#1042", "paid", "fulfilled", "1x Blue Hoodie", "59.00 EUR", "Berlin, Germany", "https://t.example/abc"} {
		if !strings.Contains(block, want) {
			t.Fatalf("order block missing %q:\n%s", want, block)
		}
	}
}

func TestBuildContextFormatsProducts(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{products: []Product{
		{Title: "Blue Hoodie", Price: "59.00", InStock: true},
		{Title: "Red Hoodie", Price: "49.00", InStock: false},
	}}
	service := NewService(nil, &fakeIntegrationSource{integration: activeIntegration()}, api)

	block := service.BuildContext(context.Background(), "bot-1", Intent{Type: IntentProduct, Query: "blue hoodie"}, "")
	for _, want := range []string{"PRODUCT INFORMATION", "Blue Hoodie: 59.00 (in stock)", "Red Hoodie: 49.00 (out of stock)"} {
		if !strings.Contains(block, want) {
			t.Fatalf("product block missing %q:\n%s", want, block)
		}
	}
}

func TestBuildContextDegradesSilently(t *testing.T) {
	t.Parallel()

	cases := map[string]*Service{
		"no integration": NewService(nil, &fakeIntegrationSource{err: ErrNoIntegration}, &fakeAPI{}),
		"lookup error": NewService(nil, &fakeIntegrationSource{integration: activeIntegration()},
			&fakeAPI{orderErr: errors.New("boom"), productsErr: errors.New("boom")}),
		"no products": NewService(nil, &fakeIntegrationSource{integration: activeIntegration()}, &fakeAPI{}),
	}
	for name, service := range cases {
		if got := service.BuildContext(context.Background(), "bot-1", Intent{Type: IntentOrder, Query: "#1"}, ""); got != "" {
			t.Fatalf("%s: order context = %q, want empty", name, got)
		}
		if got := service.BuildContext(context.Background(), "bot-1", Intent{Type: IntentProduct, Query: "hoodie"}, ""); got != "" {
			t.Fatalf("%s: product context = %q, want empty", name, got)
		}
	}
}

func TestBuildContextOrderNeedsNumberOrEmail(t *testing.T) {
	t.Parallel()

	service := NewService(nil, &fakeIntegrationSource{integration: activeIntegration()}, &fakeAPI{order: &Order{Name: "#7"}})
	if got := service.BuildContext(context.Background(), "bot-1", Intent{Type: IntentOrder}, ""); got != "" {
		t.Fatalf("context without number or email = %q, want empty", got)
	}
	if got := service.BuildContext(context.Background(), "bot-1", Intent{Type: IntentOrder}, "a@b.co"); got == "" {
		t.Fatal("email fallback should produce a context block")
	}
}
