package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/subscription"
	"github.com/xraph/reservoir/types"
)

// ==================== Pool models ====================

type poolModel struct {
	grove.BaseModel `grove:"table:reservoir_pools"`

	ID                       string          `grove:"id,pk"`
	OwnerID                  string          `grove:"owner_id"`
	ActiveSubscription       bool            `grove:"active_subscription"`
	Quantity                 int64           `grove:"quantity"`
	StartDate                time.Time       `grove:"start_date"`
	EndDate                  time.Time       `grove:"end_date"`
	ProductID                string          `grove:"product_id"`
	ProductName              string          `grove:"product_name"`
	DerivedProductID         string          `grove:"derived_product_id"`
	DerivedProductName       string          `grove:"derived_product_name"`
	ProvidedProducts         json.RawMessage `grove:"provided_products,type:jsonb"`
	DerivedProvidedProducts  json.RawMessage `grove:"derived_provided_products,type:jsonb"`
	Attributes               json.RawMessage `grove:"attributes,type:jsonb"`
	ProductAttributes        json.RawMessage `grove:"product_attributes,type:jsonb"`
	DerivedProductAttributes json.RawMessage `grove:"derived_product_attributes,type:jsonb"`
	SourceEntitlementID      string          `grove:"source_entitlement_id"`
	SourceStackConsumerID    string          `grove:"source_stack_consumer_id"`
	SourceStackID            string          `grove:"source_stack_id"`
	SourceSubID              string          `grove:"source_sub_id"`
	SourceSubKey             string          `grove:"source_sub_key"`
	ContractNumber           string          `grove:"contract_number"`
	AccountNumber            string          `grove:"account_number"`
	OrderNumber              string          `grove:"order_number"`
	RestrictedToUsername     string          `grove:"restricted_to_username"`
	Branding                 json.RawMessage `grove:"branding,type:jsonb"`
	Type                     string          `grove:"type"`
	Version                  int64           `grove:"version"`
	MarkedForDelete          bool            `grove:"marked_for_delete"`
	CreatedAt                time.Time       `grove:"created_at"`
	UpdatedAt                time.Time       `grove:"updated_at"`
}

func toPoolModel(p *pool.Pool) *poolModel {
	provided, _ := json.Marshal(p.ProvidedProducts)               //nolint:errcheck // best-effort
	derivedProvided, _ := json.Marshal(p.DerivedProvidedProducts) //nolint:errcheck // best-effort
	attrs, _ := json.Marshal(p.Attributes)                        //nolint:errcheck // best-effort
	prodAttrs, _ := json.Marshal(p.ProductAttributes)             //nolint:errcheck // best-effort
	derivedAttrs, _ := json.Marshal(p.DerivedProductAttributes)   //nolint:errcheck // best-effort
	branding, _ := json.Marshal(p.Branding)                       //nolint:errcheck // best-effort

	m := &poolModel{
		ID:                       p.ID.String(),
		OwnerID:                  p.OwnerID.String(),
		ActiveSubscription:       p.ActiveSubscription,
		Quantity:                 p.Quantity,
		StartDate:                p.StartDate,
		EndDate:                  p.EndDate,
		ProductID:                p.ProductID,
		ProductName:              p.ProductName,
		DerivedProductID:         p.DerivedProductID,
		DerivedProductName:       p.DerivedProductName,
		ProvidedProducts:         provided,
		DerivedProvidedProducts:  derivedProvided,
		Attributes:               attrs,
		ProductAttributes:        prodAttrs,
		DerivedProductAttributes: derivedAttrs,
		ContractNumber:           p.ContractNumber,
		AccountNumber:            p.AccountNumber,
		OrderNumber:              p.OrderNumber,
		RestrictedToUsername:     p.RestrictedToUsername,
		Branding:                 branding,
		Type:                     string(p.Type),
		Version:                  p.Version,
		MarkedForDelete:          p.MarkedForDelete,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}

	if !p.SourceEntitlementID.IsNil() {
		m.SourceEntitlementID = p.SourceEntitlementID.String()
	}
	if p.SourceStack != nil {
		m.SourceStackConsumerID = p.SourceStack.SourceConsumerID.String()
		m.SourceStackID = p.SourceStack.StackID
	}
	if p.SourceSubscription != nil {
		m.SourceSubID = p.SourceSubscription.SubscriptionID
		m.SourceSubKey = p.SourceSubscription.SubKey
	}
	return m
}

func fromPoolModel(m *poolModel) (*pool.Pool, error) {
	poolID, err := id.ParsePoolID(m.ID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseOwnerID(m.OwnerID)
	if err != nil {
		return nil, err
	}

	p := &pool.Pool{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                   poolID,
		OwnerID:              ownerID,
		ActiveSubscription:   m.ActiveSubscription,
		Quantity:             m.Quantity,
		StartDate:            m.StartDate,
		EndDate:              m.EndDate,
		ProductID:            m.ProductID,
		ProductName:          m.ProductName,
		DerivedProductID:     m.DerivedProductID,
		DerivedProductName:   m.DerivedProductName,
		ContractNumber:       m.ContractNumber,
		AccountNumber:        m.AccountNumber,
		OrderNumber:          m.OrderNumber,
		RestrictedToUsername: m.RestrictedToUsername,
		Type:                 pool.Type(m.Type),
		Version:              m.Version,
		MarkedForDelete:      m.MarkedForDelete,
	}

	if len(m.ProvidedProducts) > 0 {
		_ = json.Unmarshal(m.ProvidedProducts, &p.ProvidedProducts) //nolint:errcheck // best-effort
	}
	if len(m.DerivedProvidedProducts) > 0 {
		_ = json.Unmarshal(m.DerivedProvidedProducts, &p.DerivedProvidedProducts) //nolint:errcheck // best-effort
	}
	if len(m.Attributes) > 0 {
		_ = json.Unmarshal(m.Attributes, &p.Attributes) //nolint:errcheck // best-effort
	}
	if len(m.ProductAttributes) > 0 {
		_ = json.Unmarshal(m.ProductAttributes, &p.ProductAttributes) //nolint:errcheck // best-effort
	}
	if len(m.DerivedProductAttributes) > 0 {
		_ = json.Unmarshal(m.DerivedProductAttributes, &p.DerivedProductAttributes) //nolint:errcheck // best-effort
	}
	if len(m.Branding) > 0 {
		_ = json.Unmarshal(m.Branding, &p.Branding) //nolint:errcheck // best-effort
	}

	if m.SourceEntitlementID != "" {
		entID, err := id.ParseEntitlementID(m.SourceEntitlementID)
		if err != nil {
			return nil, err
		}
		p.SourceEntitlementID = entID
	}
	if m.SourceStackID != "" {
		consumerID, err := id.ParseConsumerID(m.SourceStackConsumerID)
		if err != nil {
			return nil, err
		}
		p.SourceStack = &pool.SourceStack{
			StackID:          m.SourceStackID,
			SourceConsumerID: consumerID,
		}
	}
	if m.SourceSubID != "" || m.SourceSubKey != "" {
		p.SourceSubscription = &pool.SourceSubscription{
			SubscriptionID: m.SourceSubID,
			SubKey:         m.SourceSubKey,
		}
	}

	return p, nil
}

// ==================== Entitlement models ====================

type entitlementModel struct {
	grove.BaseModel `grove:"table:reservoir_entitlements"`

	ID         string    `grove:"id,pk"`
	PoolID     string    `grove:"pool_id"`
	ConsumerID string    `grove:"consumer_id"`
	OwnerID    string    `grove:"owner_id"`
	Quantity   int64     `grove:"quantity"`
	StackID    string    `grove:"stack_id"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toEntitlementModel(e *entitlement.Entitlement) *entitlementModel {
	return &entitlementModel{
		ID:         e.ID.String(),
		PoolID:     e.PoolID.String(),
		ConsumerID: e.ConsumerID.String(),
		OwnerID:    e.OwnerID.String(),
		Quantity:   e.Quantity,
		StackID:    e.StackID,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func fromEntitlementModel(m *entitlementModel) (*entitlement.Entitlement, error) {
	entID, err := id.ParseEntitlementID(m.ID)
	if err != nil {
		return nil, err
	}
	poolID, err := id.ParsePoolID(m.PoolID)
	if err != nil {
		return nil, err
	}
	consumerID, err := id.ParseConsumerID(m.ConsumerID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseOwnerID(m.OwnerID)
	if err != nil {
		return nil, err
	}

	return &entitlement.Entitlement{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         entID,
		PoolID:     poolID,
		ConsumerID: consumerID,
		OwnerID:    ownerID,
		Quantity:   m.Quantity,
		StackID:    m.StackID,
	}, nil
}

// ==================== Consumer models ====================

type consumerModel struct {
	grove.BaseModel `grove:"table:reservoir_consumers"`

	ID        string            `grove:"id,pk"`
	OwnerID   string            `grove:"owner_id"`
	Name      string            `grove:"name"`
	Username  string            `grove:"username"`
	TypeLabel string            `grove:"type_label"`
	Manifest  bool              `grove:"manifest"`
	Facts     map[string]string `grove:"facts,type:jsonb"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toConsumerModel(c *consumer.Consumer) *consumerModel {
	return &consumerModel{
		ID:        c.ID.String(),
		OwnerID:   c.OwnerID.String(),
		Name:      c.Name,
		Username:  c.Username,
		TypeLabel: c.Type.Label,
		Manifest:  c.Type.Manifest,
		Facts:     c.Facts,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromConsumerModel(m *consumerModel) (*consumer.Consumer, error) {
	consumerID, err := id.ParseConsumerID(m.ID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseOwnerID(m.OwnerID)
	if err != nil {
		return nil, err
	}

	return &consumer.Consumer{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       consumerID,
		OwnerID:  ownerID,
		Name:     m.Name,
		Username: m.Username,
		Type: consumer.Type{
			Label:    m.TypeLabel,
			Manifest: m.Manifest,
		},
		Facts: m.Facts,
	}, nil
}

// ==================== Product models ====================

type productModel struct {
	grove.BaseModel `grove:"table:reservoir_products"`

	OwnerID             string          `grove:"owner_id,pk"`
	ID                  string          `grove:"id,pk"`
	Name                string          `grove:"name"`
	Attributes          json.RawMessage `grove:"attributes,type:jsonb"`
	Content             json.RawMessage `grove:"content,type:jsonb"`
	DependentProductIDs json.RawMessage `grove:"dependent_product_ids,type:jsonb"`
	CreatedAt           time.Time       `grove:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"`
}

func toProductModel(p *product.Product) *productModel {
	attrs, _ := json.Marshal(p.Attributes)              //nolint:errcheck // best-effort
	content, _ := json.Marshal(p.Content)               //nolint:errcheck // best-effort
	dependent, _ := json.Marshal(p.DependentProductIDs) //nolint:errcheck // best-effort

	return &productModel{
		OwnerID:             p.OwnerID.String(),
		ID:                  p.ID,
		Name:                p.Name,
		Attributes:          attrs,
		Content:             content,
		DependentProductIDs: dependent,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func fromProductModel(m *productModel) (*product.Product, error) {
	ownerID, err := id.ParseOwnerID(m.OwnerID)
	if err != nil {
		return nil, err
	}

	p := &product.Product{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      m.ID,
		OwnerID: ownerID,
		Name:    m.Name,
	}
	if len(m.Attributes) > 0 {
		_ = json.Unmarshal(m.Attributes, &p.Attributes) //nolint:errcheck // best-effort
	}
	if len(m.Content) > 0 {
		_ = json.Unmarshal(m.Content, &p.Content) //nolint:errcheck // best-effort
	}
	if len(m.DependentProductIDs) > 0 {
		_ = json.Unmarshal(m.DependentProductIDs, &p.DependentProductIDs) //nolint:errcheck // best-effort
	}
	return p, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:reservoir_subscriptions"`

	ID                        string          `grove:"id,pk"`
	OwnerID                   string          `grove:"owner_id"`
	ProductID                 string          `grove:"product_id"`
	ProductName               string          `grove:"product_name"`
	Quantity                  int64           `grove:"quantity"`
	StartDate                 time.Time       `grove:"start_date"`
	EndDate                   time.Time       `grove:"end_date"`
	ContractNumber            string          `grove:"contract_number"`
	AccountNumber             string          `grove:"account_number"`
	OrderNumber               string          `grove:"order_number"`
	ProvidedProductIDs        json.RawMessage `grove:"provided_product_ids,type:jsonb"`
	DerivedProductID          string          `grove:"derived_product_id"`
	DerivedProvidedProductIDs json.RawMessage `grove:"derived_provided_product_ids,type:jsonb"`
	CreatedAt                 time.Time       `grove:"created_at"`
	UpdatedAt                 time.Time       `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	provided, _ := json.Marshal(s.ProvidedProductIDs)               //nolint:errcheck // best-effort
	derivedProvided, _ := json.Marshal(s.DerivedProvidedProductIDs) //nolint:errcheck // best-effort

	return &subscriptionModel{
		ID:                        s.ID.String(),
		OwnerID:                   s.OwnerID.String(),
		ProductID:                 s.ProductID,
		ProductName:               s.ProductName,
		Quantity:                  s.Quantity,
		StartDate:                 s.StartDate,
		EndDate:                   s.EndDate,
		ContractNumber:            s.ContractNumber,
		AccountNumber:             s.AccountNumber,
		OrderNumber:               s.OrderNumber,
		ProvidedProductIDs:        provided,
		DerivedProductID:          s.DerivedProductID,
		DerivedProvidedProductIDs: derivedProvided,
		CreatedAt:                 s.CreatedAt,
		UpdatedAt:                 s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseOwnerID(m.OwnerID)
	if err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               subID,
		OwnerID:          ownerID,
		ProductID:        m.ProductID,
		ProductName:      m.ProductName,
		Quantity:         m.Quantity,
		StartDate:        m.StartDate,
		EndDate:          m.EndDate,
		ContractNumber:   m.ContractNumber,
		AccountNumber:    m.AccountNumber,
		OrderNumber:      m.OrderNumber,
		DerivedProductID: m.DerivedProductID,
	}
	if len(m.ProvidedProductIDs) > 0 {
		_ = json.Unmarshal(m.ProvidedProductIDs, &s.ProvidedProductIDs) //nolint:errcheck // best-effort
	}
	if len(m.DerivedProvidedProductIDs) > 0 {
		_ = json.Unmarshal(m.DerivedProvidedProductIDs, &s.DerivedProvidedProductIDs) //nolint:errcheck // best-effort
	}
	return s, nil
}
