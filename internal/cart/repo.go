package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// ErrVersionConflict is returned when a conditional cart write lost a race.
var ErrVersionConflict = errors.New("cart version conflict")

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByOwner loads the owner's cart with lines in insertion order. It
// returns gorm.ErrRecordNotFound when the owner has no cart.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		}).
		Where("owner_id = ?", ownerID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts an empty cart row.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(cart).Error
}

// Delete removes a cart and its lines.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", id).Delete(&models.CartLine{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Cart{}).Error
	})
}

// BumpVersion writes the cart header only if its version is still expected,
// advancing it by one.
func (r *Repository) BumpVersion(ctx context.Context, cart *models.Cart, expected int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cart.ID, expected).
		Updates(map[string]any{
			"version":     expected + 1,
			"coupon_code": cart.CouponCode,
			"expires_at":  cart.ExpiresAt,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	cart.Version = expected + 1
	return nil
}

// SaveLine inserts new lines and overwrites existing ones.
func (r *Repository) SaveLine(ctx context.Context, line *models.CartLine) error {
	if line.ID == uuid.Nil {
		return r.db.WithContext(ctx).Create(line).Error
	}
	return r.db.WithContext(ctx).Save(line).Error
}

// DeleteLines removes the given lines of a cart.
func (r *Repository) DeleteLines(ctx context.Context, cartID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND id IN ?", cartID, ids).
		Delete(&models.CartLine{}).Error
}

// CountItems sums line quantities of the owner's live cart.
func (r *Repository) CountItems(ctx context.Context, ownerID uuid.UUID, now time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Table("cart_lines").
		Joins("JOIN carts ON carts.id = cart_lines.cart_id").
		Where("carts.owner_id = ? AND (carts.expires_at IS NULL OR carts.expires_at > ?)", ownerID, now).
		Select("COALESCE(SUM(cart_lines.quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

// RemovePurchased subtracts purchased quantities, keyed by line identity,
// from the owner's cart and drops lines that reach zero.
func (r *Repository) RemovePurchased(ctx context.Context, ownerID uuid.UUID, purchased map[string]int) error {
	cart, err := r.FindByOwner(ctx, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var drop []uuid.UUID
	changed := false
	for i := range cart.Lines {
		line := &cart.Lines[i]
		qty, ok := purchased[types.LineIdentity(line.ProductID.String(), line.VariantString())]
		if !ok || qty <= 0 {
			continue
		}
		changed = true
		if line.Quantity <= qty {
			drop = append(drop, line.ID)
			continue
		}
		line.Quantity -= qty
		if err := r.SaveLine(ctx, line); err != nil {
			return err
		}
	}
	if !changed {
		return nil
	}
	if err := r.DeleteLines(ctx, cart.ID, drop); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

// DeleteExpired removes up to limit carts whose expiry passed.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id IN ?", ids).Delete(&models.CartLine{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Cart{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
