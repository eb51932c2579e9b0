package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/coupons"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Service exposes the authoritative per-user cart.
type Service interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*types.Cart, error)
	AddItem(ctx context.Context, ownerID uuid.UUID, input AddItemInput) (*types.Cart, error)
	UpdateItem(ctx context.Context, ownerID, lineID uuid.UUID, input UpdateItemInput) (*types.Cart, error)
	RemoveItem(ctx context.Context, ownerID, lineID uuid.UUID, ifMatch *int64) (*types.Cart, error)
	Clear(ctx context.Context, ownerID uuid.UUID, ifMatch *int64) (*types.Cart, error)
	MergeGuestCart(ctx context.Context, ownerID uuid.UUID, guest []types.CartLine, ifMatch *int64) (*MergeResult, error)
	ApplyCoupon(ctx context.Context, ownerID uuid.UUID, code string, ifMatch *int64) (*types.Cart, error)
	RemoveCoupon(ctx context.Context, ownerID uuid.UUID, ifMatch *int64) (*types.Cart, error)
	GetItemCount(ctx context.Context, ownerID uuid.UUID) (int, error)
	Validate(ctx context.Context, ownerID uuid.UUID) (*types.CartValidation, error)
}

// AddItemInput is the payload of POST /cart. IfMatch carries the version the
// client last saw, when it sent one.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	IfMatch   *int64
}

// UpdateItemInput is the payload of PATCH /cart/{itemId}.
type UpdateItemInput struct {
	Quantity int
	IfMatch  *int64
}

type service struct {
	repo    CartRepository
	tx      txRunner
	catalog catalog.Lookup
	coupons couponEvaluator
	taxRate decimal.Decimal
	ttl     time.Duration
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, lookup catalog.Lookup, couponSvc couponEvaluator, cfg config.CartConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon evaluator required")
	}
	rate, err := cfg.Tax()
	if err != nil {
		return nil, err
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: lookup,
		coupons: couponSvc,
		taxRate: rate,
		ttl:     cfg.TTL,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, ownerID uuid.UUID) (*types.Cart, error) {
	cart, err := s.active(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, ownerID uuid.UUID, input AddItemInput) (*types.Cart, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return s.mutate(ctx, ownerID, input.IfMatch, func(ctx context.Context, cart *models.Cart) error {
		snap, err := s.catalog.GetProduct(ctx, input.ProductID, input.VariantID)
		if err != nil {
			return err
		}
		if !snap.IsAvailable {
			return outOfStock(snap, input.Quantity)
		}

		identity := identityOf(input.ProductID, input.VariantID)
		if idx := findByIdentity(cart.Lines, identity); idx >= 0 {
			line := &cart.Lines[idx]
			requested := line.Quantity + input.Quantity
			if requested > snap.MaxQuantity {
				return outOfStock(snap, requested)
			}
			line.Quantity = requested
			refreshLine(line, snap)
			return nil
		}

		if input.Quantity > snap.MaxQuantity {
			return outOfStock(snap, input.Quantity)
		}
		cart.Lines = append(cart.Lines, newLine(cart.ID, snap, input.Quantity))
		return nil
	})
}

func (s *service) UpdateItem(ctx context.Context, ownerID, lineID uuid.UUID, input UpdateItemInput) (*types.Cart, error) {
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if input.Quantity == 0 {
		return s.RemoveItem(ctx, ownerID, lineID, input.IfMatch)
	}
	return s.mutate(ctx, ownerID, input.IfMatch, func(ctx context.Context, cart *models.Cart) error {
		idx := findByID(cart.Lines, lineID)
		if idx < 0 {
			return lineNotFound(lineID)
		}
		line := &cart.Lines[idx]
		snap, err := s.catalog.GetProduct(ctx, line.ProductID, line.VariantID)
		if err != nil {
			return err
		}
		if !snap.IsAvailable || input.Quantity > snap.MaxQuantity {
			return outOfStock(snap, input.Quantity)
		}
		line.Quantity = input.Quantity
		refreshLine(line, snap)
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, ownerID, lineID uuid.UUID, ifMatch *int64) (*types.Cart, error) {
	return s.mutate(ctx, ownerID, ifMatch, func(_ context.Context, cart *models.Cart) error {
		idx := findByID(cart.Lines, lineID)
		if idx < 0 {
			return lineNotFound(lineID)
		}
		cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
		return nil
	})
}

func (s *service) Clear(ctx context.Context, ownerID uuid.UUID, ifMatch *int64) (*types.Cart, error) {
	return s.mutate(ctx, ownerID, ifMatch, func(_ context.Context, cart *models.Cart) error {
		cart.Lines = nil
		cart.CouponCode = nil
		return nil
	})
}

func (s *service) ApplyCoupon(ctx context.Context, ownerID uuid.UUID, code string, ifMatch *int64) (*types.Cart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	return s.mutate(ctx, ownerID, ifMatch, func(ctx context.Context, cart *models.Cart) error {
		eval, err := s.coupons.Evaluate(ctx, code, shopSubtotals(toViewLines(cart.Lines)))
		if err != nil {
			return err
		}
		applied := eval.Code
		cart.CouponCode = &applied
		return nil
	})
}

func (s *service) RemoveCoupon(ctx context.Context, ownerID uuid.UUID, ifMatch *int64) (*types.Cart, error) {
	return s.mutate(ctx, ownerID, ifMatch, func(_ context.Context, cart *models.Cart) error {
		cart.CouponCode = nil
		return nil
	})
}

func (s *service) GetItemCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	count, err := s.repo.CountItems(ctx, ownerID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
	}
	return count, nil
}

// active loads the owner's live cart, replacing an expired one and creating
// it on first use.
func (s *service) active(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart owner is required")
	}
	cart, err := s.repo.FindByOwner(ctx, ownerID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cart = nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	now := s.now().UTC()
	if cart != nil && cart.IsExpired(now) {
		if err := s.repo.Delete(ctx, cart.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop expired cart")
		}
		cart = nil
	}
	if cart != nil {
		return cart, nil
	}

	expires := now.Add(s.ttl)
	cart = &models.Cart{OwnerID: ownerID, Version: 1, ExpiresAt: &expires}
	if err := s.repo.Create(ctx, cart); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
		}
		// another request created it first
		if cart, err = s.repo.FindByOwner(ctx, ownerID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
	}
	return cart, nil
}

// mutate applies fn to a freshly loaded cart and persists the result with a
// version-checked write. fn runs before the transaction opens so it may read
// the catalog; it must not touch the database itself.
func (s *service) mutate(ctx context.Context, ownerID uuid.UUID, ifMatch *int64, fn func(ctx context.Context, cart *models.Cart) error) (*types.Cart, error) {
	cart, err := s.active(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ifMatch != nil && *ifMatch != cart.Version {
		return nil, staleVersion(*ifMatch, cart.Version)
	}

	expected := cart.Version
	before := make([]uuid.UUID, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		before = append(before, line.ID)
	}

	if err := fn(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.dropStaleCoupon(ctx, cart); err != nil {
		return nil, err
	}

	expires := s.now().UTC().Add(s.ttl)
	cart.ExpiresAt = &expires

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.BumpVersion(ctx, cart, expected); err != nil {
			return err
		}
		kept := make(map[uuid.UUID]struct{}, len(cart.Lines))
		for _, line := range cart.Lines {
			kept[line.ID] = struct{}{}
		}
		var removed []uuid.UUID
		for _, id := range before {
			if _, ok := kept[id]; !ok {
				removed = append(removed, id)
			}
		}
		if err := repo.DeleteLines(ctx, cart.ID, removed); err != nil {
			return err
		}
		for i := range cart.Lines {
			cart.Lines[i].CartID = cart.ID
			cart.Lines[i].Position = i
			if err := repo.SaveLine(ctx, &cart.Lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently").
				WithDetails(map[string]any{"expected_version": expected})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return s.view(ctx, cart)
}

// view computes the response shape. A coupon that stopped applying is left
// out of the totals without writing, so reads never move the version.
func (s *service) view(ctx context.Context, cart *models.Cart) (*types.Cart, error) {
	lines := toViewLines(cart.Lines)
	var eval *coupons.Evaluation
	if cart.CouponCode != nil {
		var err error
		eval, err = s.coupons.Evaluate(ctx, *cart.CouponCode, shopSubtotals(lines))
		if err != nil {
			if !isCouponRejection(err) {
				return nil, err
			}
			eval = nil
		}
	}
	return buildView(cart, lines, eval, s.taxRate), nil
}

// dropStaleCoupon clears a coupon the mutated cart no longer qualifies for,
// so the write that follows persists the detach.
func (s *service) dropStaleCoupon(ctx context.Context, cart *models.Cart) error {
	if cart.CouponCode == nil {
		return nil
	}
	_, err := s.coupons.Evaluate(ctx, *cart.CouponCode, shopSubtotals(toViewLines(cart.Lines)))
	if err == nil {
		return nil
	}
	if !isCouponRejection(err) {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"cart_id": cart.ID.String(), "coupon_code": *cart.CouponCode}), "detached coupon that no longer applies")
	cart.CouponCode = nil
	return nil
}

func isCouponRejection(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInvalidCoupon) ||
		pkgerrors.IsCode(err, pkgerrors.CodeCouponExpired) ||
		pkgerrors.IsCode(err, pkgerrors.CodeOrderValueBelowMinimum)
}

func identityOf(productID uuid.UUID, variantID *uuid.UUID) string {
	variant := ""
	if variantID != nil {
		variant = variantID.String()
	}
	return types.LineIdentity(productID.String(), variant)
}

func findByIdentity(lines []models.CartLine, identity string) int {
	for i, line := range lines {
		if types.LineIdentity(line.ProductID.String(), line.VariantString()) == identity {
			return i
		}
	}
	return -1
}

func findByID(lines []models.CartLine, id uuid.UUID) int {
	for i, line := range lines {
		if line.ID == id {
			return i
		}
	}
	return -1
}

func newLine(cartID uuid.UUID, snap *catalog.Snapshot, quantity int) models.CartLine {
	line := models.CartLine{
		CartID:    cartID,
		ProductID: snap.ProductID,
		Quantity:  quantity,
	}
	if snap.VariantID != nil {
		variant := *snap.VariantID
		line.VariantID = &variant
	}
	refreshLine(&line, snap)
	return line
}

func refreshLine(line *models.CartLine, snap *catalog.Snapshot) {
	line.ShopID = snap.ShopID
	line.ShopName = snap.ShopName
	line.ProductName = snap.Name
	line.ProductSlug = snap.Slug
	line.UnitPriceCents = snap.PriceCents
	line.MaxQuantity = snap.MaxQuantity
	line.IsAvailable = snap.IsAvailable
}

func outOfStock(snap *catalog.Snapshot, requested int) error {
	details := map[string]any{
		"product_id": snap.ProductID.String(),
		"requested":  requested,
		"available":  snap.MaxQuantity,
	}
	if snap.VariantID != nil {
		details["variant_id"] = snap.VariantID.String()
	}
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "requested quantity is not available").WithDetails(details)
}

func lineNotFound(lineID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").
		WithDetails(map[string]any{"item_id": lineID.String()})
}

func staleVersion(sent, current int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart version is stale").
		WithDetails(map[string]any{"if_match": sent, "current_version": current})
}
