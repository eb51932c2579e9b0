package guestcart

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// DefaultMaxQuantity applies when a product does not declare a limit.
const DefaultMaxQuantity = 100

// Store is an unauthenticated shopper's cart persisted as one JSON array under
// a single key. No operation returns an error: storage failures are logged
// and read as an empty cart.
type Store struct {
	kv   KV
	key  string
	logg *logger.Logger
}

// New binds a store to key. kv may be nil.
func New(kv KV, key string, logg *logger.Logger) *Store {
	return &Store{kv: kv, key: key, logg: logg}
}

// Details describes a product being added from a listing page.
type Details struct {
	ProductID      string
	VariantID      string
	ShopID         string
	ShopName       string
	Name           string
	UnitPriceCents int
	Quantity       int
	MaxQuantity    int
	IsAvailable    *bool
}

// Get returns the stored lines, or an empty list when nothing usable is stored.
func (s *Store) Get(ctx context.Context) []types.CartLine {
	if s.kv == nil {
		return []types.CartLine{}
	}
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.warn(ctx, "guest cart read failed", err)
		return []types.CartLine{}
	}
	if !found || raw == "" {
		return []types.CartLine{}
	}
	var lines []types.CartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		s.warn(ctx, "guest cart payload unreadable; treating as empty", err)
		return []types.CartLine{}
	}
	if lines == nil {
		return []types.CartLine{}
	}
	return lines
}

// Set replaces the stored lines.
func (s *Store) Set(ctx context.Context, lines []types.CartLine) {
	if s.kv == nil {
		return
	}
	if lines == nil {
		lines = []types.CartLine{}
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		s.warn(ctx, "guest cart encode failed", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, string(payload)); err != nil {
		s.warn(ctx, "guest cart write failed", err)
	}
}

// Add merges candidate into the cart. An existing line with the same product
// and variant grows by the candidate quantity, capped at that line's own max.
func (s *Store) Add(ctx context.Context, candidate types.CartLine) []types.CartLine {
	if candidate.Quantity <= 0 {
		return s.Get(ctx)
	}
	lines := s.Get(ctx)
	identity := candidate.Identity()
	for i := range lines {
		if lines[i].Identity() != identity {
			continue
		}
		lines[i].Quantity = clamp(lines[i].Quantity+candidate.Quantity, lines[i].MaxQuantity)
		lines[i].Recompute()
		s.Set(ctx, lines)
		return lines
	}

	if candidate.MaxQuantity <= 0 {
		candidate.MaxQuantity = DefaultMaxQuantity
	}
	candidate.Quantity = clamp(candidate.Quantity, candidate.MaxQuantity)
	candidate.Recompute()
	lines = append(lines, candidate)
	s.Set(ctx, lines)
	return lines
}

// AddWithDetails derives the line id, slug and defaults, then adds it.
func (s *Store) AddWithDetails(ctx context.Context, d Details) []types.CartLine {
	quantity := d.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	maxQuantity := d.MaxQuantity
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxQuantity
	}
	available := true
	if d.IsAvailable != nil {
		available = *d.IsAvailable
	}
	return s.Add(ctx, types.CartLine{
		ID:             types.LineIdentity(d.ProductID, d.VariantID),
		ProductID:      d.ProductID,
		VariantID:      d.VariantID,
		ShopID:         d.ShopID,
		ShopName:       d.ShopName,
		ProductName:    d.Name,
		ProductSlug:    Slugify(d.Name),
		UnitPriceCents: d.UnitPriceCents,
		Quantity:       quantity,
		MaxQuantity:    maxQuantity,
		IsAvailable:    available,
	})
}

// Update sets a line's quantity; zero or less removes it.
func (s *Store) Update(ctx context.Context, id string, quantity int) []types.CartLine {
	if quantity <= 0 {
		return s.Remove(ctx, id)
	}
	lines := s.Get(ctx)
	for i := range lines {
		if lines[i].ID != id {
			continue
		}
		lines[i].Quantity = clamp(quantity, lines[i].MaxQuantity)
		lines[i].Recompute()
		s.Set(ctx, lines)
		return lines
	}
	return lines
}

// Remove deletes the line with id if present.
func (s *Store) Remove(ctx context.Context, id string) []types.CartLine {
	lines := s.Get(ctx)
	kept := lines[:0]
	removed := false
	for _, line := range lines {
		if line.ID == id {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if removed {
		s.Set(ctx, kept)
	}
	return kept
}

// Clear drops the stored cart.
func (s *Store) Clear(ctx context.Context) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Del(ctx, s.key); err != nil {
		s.warn(ctx, "guest cart clear failed", err)
	}
}

// ItemCount sums quantities across lines.
func (s *Store) ItemCount(ctx context.Context) int {
	total := 0
	for _, line := range s.Get(ctx) {
		total += line.Quantity
	}
	return total
}

func (s *Store) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"key": s.key, "error": err.Error()})
	s.logg.Warn(ctx, msg)
}

// clamp bounds quantity to [1, limit]. A non-positive limit falls back to the default.
func clamp(quantity, limit int) int {
	if limit <= 0 {
		limit = DefaultMaxQuantity
	}
	if quantity > limit {
		return limit
	}
	if quantity < 1 {
		return 1
	}
	return quantity
}

// Sessions hands out stores bound to one guest session each.
type Sessions struct {
	kv     KV
	keyFor func(session string) string
	logg   *logger.Logger
}

// NewSessions builds a session-scoped store factory. keyFor maps a session id
// to its storage key; kv may be nil.
func NewSessions(kv KV, keyFor func(session string) string, logg *logger.Logger) *Sessions {
	return &Sessions{kv: kv, keyFor: keyFor, logg: logg}
}

// For returns the store of session. An empty session has no storage.
func (s *Sessions) For(session string) *Store {
	if s == nil || session == "" {
		return New(nil, "", nil)
	}
	return New(s.kv, s.keyFor(session), s.logg)
}
