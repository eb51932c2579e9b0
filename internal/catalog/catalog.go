package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// Snapshot is the live view of a product (or one of its variants) the cart
// and checkout price against.
type Snapshot struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ShopID      uuid.UUID
	ShopName    string
	Name        string
	Slug        string
	PriceCents  int
	MaxQuantity int
	IsAvailable bool
}

// Lookup resolves live catalog state.
type Lookup interface {
	GetProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Snapshot, error)
}

// Repository reads products and variants from the catalog tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetProduct returns NOT_FOUND when the product, or the requested variant of
// it, does not exist. Inactive listings are returned as unavailable.
func (r *Repository) GetProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Snapshot, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if variantID == nil {
		return snapshotOf(product, nil), nil
	}

	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", *variantID, productID).
		First(&variant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found").
				WithDetails(map[string]any{"product_id": productID.String(), "variant_id": variantID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product variant")
	}
	return snapshotOf(product, &variant), nil
}

func snapshotOf(product models.Product, variant *models.ProductVariant) *Snapshot {
	snap := &Snapshot{
		ProductID:   product.ID,
		ShopID:      product.ShopID,
		ShopName:    product.ShopName,
		Name:        product.Name,
		Slug:        product.Slug,
		PriceCents:  product.PriceCents,
		IsAvailable: product.IsActive,
	}
	stock := product.StockQty
	if variant != nil {
		id := variant.ID
		snap.VariantID = &id
		if name := strings.TrimSpace(variant.Name); name != "" {
			snap.Name = product.Name + " - " + name
		}
		if variant.PriceCents != nil {
			snap.PriceCents = *variant.PriceCents
		}
		stock = variant.StockQty
		snap.IsAvailable = snap.IsAvailable && variant.IsActive
	}

	snap.MaxQuantity = stock
	if product.MaxPerOrder != nil && *product.MaxPerOrder < snap.MaxQuantity {
		snap.MaxQuantity = *product.MaxPerOrder
	}
	if snap.MaxQuantity <= 0 {
		snap.MaxQuantity = 0
		snap.IsAvailable = false
	}
	return snap
}
