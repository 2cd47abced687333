package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway は決済プロバイダへの操作インターフェース。
type StripeGateway interface {
	// CreateCustomer は決済顧客を作成してIDを返す。
	CreateCustomer(email, name string) (string, error)
	// CreateCheckoutSession はサブスクリプション購入用のチェックアウトURLを返す。
	CreateCheckoutSession(customerID string) (string, error)
	// CreatePortalSession は契約管理ポータルのURLを返す。
	CreatePortalSession(customerID string) (string, error)
}

// StripeConfig はStripeクライアントの設定。
type StripeConfig struct {
	SecretKey string
	PriceID   string
	// AppScheme はアプリへ戻るためのカスタムURLスキーム。
	AppScheme string
}

// stripeClient はstripe-goを使用したStripeGatewayの実装。
type stripeClient struct {
	api    *client.API
	config StripeConfig
}

// NewStripeClient はstripeClientの新しいインスタンスを生成する。
func NewStripeClient(config StripeConfig) *stripeClient {
	api := &client.API{}
	api.Init(config.SecretKey, nil)
	return &stripeClient{api: api, config: config}
}

var _ StripeGateway = (*stripeClient)(nil)

func (c *stripeClient) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return customer.ID, nil
}

func (c *stripeClient) CreateCheckoutSession(customerID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.config.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(c.config.AppScheme + "://plans?status=success"),
		CancelURL:           stripe.String(c.config.AppScheme + "://plans?status=cancel"),
		AllowPromotionCodes: stripe.Bool(true),
	}
	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

func (c *stripeClient) CreatePortalSession(customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.config.AppScheme + "://plans"),
	}
	session, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}
