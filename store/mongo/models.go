package mongo

import (
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

	ID                       string                 `grove:"id,pk"                      bson:"_id"`
	OwnerID                  string                 `grove:"owner_id"                   bson:"owner_id"`
	ActiveSubscription       bool                   `grove:"active_subscription"        bson:"active_subscription"`
	Quantity                 int64                  `grove:"quantity"                   bson:"quantity"`
	StartDate                time.Time              `grove:"start_date"                 bson:"start_date"`
	EndDate                  time.Time              `grove:"end_date"                   bson:"end_date"`
	ProductID                string                 `grove:"product_id"                 bson:"product_id"`
	ProductName              string                 `grove:"product_name"               bson:"product_name"`
	DerivedProductID         string                 `grove:"derived_product_id"         bson:"derived_product_id"`
	DerivedProductName       string                 `grove:"derived_product_name"       bson:"derived_product_name"`
	ProvidedProducts         []providedProductModel `grove:"provided_products"          bson:"provided_products,omitempty"`
	DerivedProvidedProducts  []providedProductModel `grove:"derived_provided_products"  bson:"derived_provided_products,omitempty"`
	Attributes               map[string]string      `grove:"attributes"                 bson:"attributes,omitempty"`
	ProductAttributes        map[string]string      `grove:"product_attributes"         bson:"product_attributes,omitempty"`
	DerivedProductAttributes map[string]string      `grove:"derived_product_attributes" bson:"derived_product_attributes,omitempty"`
	SourceEntitlementID      string                 `grove:"source_entitlement_id"      bson:"source_entitlement_id"`
	SourceStackConsumerID    string                 `grove:"source_stack_consumer_id"   bson:"source_stack_consumer_id"`
	SourceStackID            string                 `grove:"source_stack_id"            bson:"source_stack_id"`
	SourceSubID              string                 `grove:"source_sub_id"              bson:"source_sub_id"`
	SourceSubKey             string                 `grove:"source_sub_key"             bson:"source_sub_key"`
	ContractNumber           string                 `grove:"contract_number"            bson:"contract_number"`
	AccountNumber            string                 `grove:"account_number"             bson:"account_number"`
	OrderNumber              string                 `grove:"order_number"               bson:"order_number"`
	RestrictedToUsername     string                 `grove:"restricted_to_username"     bson:"restricted_to_username"`
	Branding                 []brandingModel        `grove:"branding"                   bson:"branding,omitempty"`
	Type                     string                 `grove:"type"                       bson:"type"`
	Version                  int64                  `grove:"version"                    bson:"version"`
	MarkedForDelete          bool                   `grove:"marked_for_delete"          bson:"marked_for_delete"`
	CreatedAt                time.Time              `grove:"created_at"                 bson:"created_at"`
	UpdatedAt                time.Time              `grove:"updated_at"                 bson:"updated_at"`
}

type providedProductModel struct {
	ProductID   string `bson:"product_id"`
	ProductName string `bson:"product_name,omitempty"`
}

type brandingModel struct {
	ProductID string `bson:"product_id"`
	Type      string `bson:"type"`
	Name      string `bson:"name"`
}

func toProvidedProductModels(pps []pool.ProvidedProduct) []providedProductModel {
	if len(pps) == 0 {
		return nil
	}
	models := make([]providedProductModel, len(pps))
	for i, pp := range pps {
		models[i] = providedProductModel{ProductID: pp.ProductID, ProductName: pp.ProductName}
	}
	return models
}

func fromProvidedProductModels(models []providedProductModel) []pool.ProvidedProduct {
	if len(models) == 0 {
		return nil
	}
	pps := make([]pool.ProvidedProduct, len(models))
	for i, m := range models {
		pps[i] = pool.ProvidedProduct{ProductID: m.ProductID, ProductName: m.ProductName}
	}
	return pps
}

func toPoolModel(p *pool.Pool) *poolModel {
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
		ProvidedProducts:         toProvidedProductModels(p.ProvidedProducts),
		DerivedProvidedProducts:  toProvidedProductModels(p.DerivedProvidedProducts),
		Attributes:               p.Attributes,
		ProductAttributes:        p.ProductAttributes,
		DerivedProductAttributes: p.DerivedProductAttributes,
		ContractNumber:           p.ContractNumber,
		AccountNumber:            p.AccountNumber,
		OrderNumber:              p.OrderNumber,
		RestrictedToUsername:     p.RestrictedToUsername,
		Type:                     string(p.Type),
		Version:                  p.Version,
		MarkedForDelete:          p.MarkedForDelete,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}

	for _, b := range p.Branding {
		m.Branding = append(m.Branding, brandingModel{ProductID: b.ProductID, Type: b.Type, Name: b.Name})
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
		ID:                       poolID,
		OwnerID:                  ownerID,
		ActiveSubscription:       m.ActiveSubscription,
		Quantity:                 m.Quantity,
		StartDate:                m.StartDate,
		EndDate:                  m.EndDate,
		ProductID:                m.ProductID,
		ProductName:              m.ProductName,
		DerivedProductID:         m.DerivedProductID,
		DerivedProductName:       m.DerivedProductName,
		ProvidedProducts:         fromProvidedProductModels(m.ProvidedProducts),
		DerivedProvidedProducts:  fromProvidedProductModels(m.DerivedProvidedProducts),
		Attributes:               m.Attributes,
		ProductAttributes:        m.ProductAttributes,
		DerivedProductAttributes: m.DerivedProductAttributes,
		ContractNumber:           m.ContractNumber,
		AccountNumber:            m.AccountNumber,
		OrderNumber:              m.OrderNumber,
		RestrictedToUsername:     m.RestrictedToUsername,
		Type:                     pool.Type(m.Type),
		Version:                  m.Version,
		MarkedForDelete:          m.MarkedForDelete,
	}

	for _, b := range m.Branding {
		p.Branding = append(p.Branding, pool.Branding{ProductID: b.ProductID, Type: b.Type, Name: b.Name})
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

	ID         string    `grove:"id,pk"       bson:"_id"`
	PoolID     string    `grove:"pool_id"     bson:"pool_id"`
	ConsumerID string    `grove:"consumer_id" bson:"consumer_id"`
	OwnerID    string    `grove:"owner_id"    bson:"owner_id"`
	Quantity   int64     `grove:"quantity"    bson:"quantity"`
	StackID    string    `grove:"stack_id"    bson:"stack_id"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
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

	ID        string            `grove:"id,pk"      bson:"_id"`
	OwnerID   string            `grove:"owner_id"   bson:"owner_id"`
	Name      string            `grove:"name"       bson:"name"`
	Username  string            `grove:"username"   bson:"username"`
	TypeLabel string            `grove:"type_label" bson:"type_label"`
	Manifest  bool              `grove:"manifest"   bson:"manifest"`
	Facts     map[string]string `grove:"facts"      bson:"facts,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
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

	// Mongo has no composite primary keys; _id is owner_id:product_id.
	ID                  string            `grove:"id,pk"                 bson:"_id"`
	OwnerID             string            `grove:"owner_id"              bson:"owner_id"`
	ProductID           string            `grove:"product_id"            bson:"product_id"`
	Name                string            `grove:"name"                  bson:"name"`
	Attributes          map[string]string `grove:"attributes"            bson:"attributes,omitempty"`
	Content             []contentModel    `grove:"content"               bson:"content,omitempty"`
	DependentProductIDs []string          `grove:"dependent_product_ids" bson:"dependent_product_ids,omitempty"`
	CreatedAt           time.Time         `grove:"created_at"            bson:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"            bson:"updated_at"`
}

type contentModel struct {
	ID                 string   `bson:"id"`
	Label              string   `bson:"label"`
	Name               string   `bson:"name"`
	ModifiedProductIDs []string `bson:"modified_product_ids,omitempty"`
}

func productDocID(ownerID, productID string) string {
	return ownerID + ":" + productID
}

func toProductModel(p *product.Product) *productModel {
	m := &productModel{
		ID:                  productDocID(p.OwnerID.String(), p.ID),
		OwnerID:             p.OwnerID.String(),
		ProductID:           p.ID,
		Name:                p.Name,
		Attributes:          p.Attributes,
		DependentProductIDs: p.DependentProductIDs,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	for _, c := range p.Content {
		m.Content = append(m.Content, contentModel{
			ID:                 c.ID,
			Label:              c.Label,
			Name:               c.Name,
			ModifiedProductIDs: c.ModifiedProductIDs,
		})
	}
	return m
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
		ID:                  m.ProductID,
		OwnerID:             ownerID,
		Name:                m.Name,
		Attributes:          m.Attributes,
		DependentProductIDs: m.DependentProductIDs,
	}
	for _, c := range m.Content {
		p.Content = append(p.Content, product.Content{
			ID:                 c.ID,
			Label:              c.Label,
			Name:               c.Name,
			ModifiedProductIDs: c.ModifiedProductIDs,
		})
	}
	return p, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:reservoir_subscriptions"`

	ID                        string    `grove:"id,pk"                        bson:"_id"`
	OwnerID                   string    `grove:"owner_id"                     bson:"owner_id"`
	ProductID                 string    `grove:"product_id"                   bson:"product_id"`
	ProductName               string    `grove:"product_name"                 bson:"product_name"`
	Quantity                  int64     `grove:"quantity"                     bson:"quantity"`
	StartDate                 time.Time `grove:"start_date"                   bson:"start_date"`
	EndDate                   time.Time `grove:"end_date"                     bson:"end_date"`
	ContractNumber            string    `grove:"contract_number"              bson:"contract_number"`
	AccountNumber             string    `grove:"account_number"               bson:"account_number"`
	OrderNumber               string    `grove:"order_number"                 bson:"order_number"`
	ProvidedProductIDs        []string  `grove:"provided_product_ids"         bson:"provided_product_ids,omitempty"`
	DerivedProductID          string    `grove:"derived_product_id"           bson:"derived_product_id"`
	DerivedProvidedProductIDs []string  `grove:"derived_provided_product_ids" bson:"derived_provided_product_ids,omitempty"`
	CreatedAt                 time.Time `grove:"created_at"                   bson:"created_at"`
	UpdatedAt                 time.Time `grove:"updated_at"                   bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
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
		ProvidedProductIDs:        s.ProvidedProductIDs,
		DerivedProductID:          s.DerivedProductID,
		DerivedProvidedProductIDs: s.DerivedProvidedProductIDs,
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

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                        subID,
		OwnerID:                   ownerID,
		ProductID:                 m.ProductID,
		ProductName:               m.ProductName,
		Quantity:                  m.Quantity,
		StartDate:                 m.StartDate,
		EndDate:                   m.EndDate,
		ContractNumber:            m.ContractNumber,
		AccountNumber:             m.AccountNumber,
		OrderNumber:               m.OrderNumber,
		ProvidedProductIDs:        m.ProvidedProductIDs,
		DerivedProductID:          m.DerivedProductID,
		DerivedProvidedProductIDs: m.DerivedProvidedProductIDs,
	}, nil
}
