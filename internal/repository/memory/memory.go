// Package memory is a process-local implementation of the repositories with the same
// per-document versioning semantics as the postgres and firestore stores.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/repository"
)

type Store struct {
	repository.CellRepository
	repository.BookingRepository
	repository.PaymentRepository
	repository.PromoRepository
	repository.CatalogRepository
}

func NewStore() *Store {
	payments := NewPaymentRepository()
	return &Store{
		CellRepository:    NewCellRepository(),
		BookingRepository: NewBookingRepository(payments),
		PaymentRepository: payments,
		PromoRepository:   NewPromoRepository(),
		CatalogRepository: NewCatalogRepository(),
	}
}

type cellRepository struct {
	mu    sync.Mutex
	cells map[string]domain.AvailabilityCell
}

func NewCellRepository() repository.CellRepository {
	return &cellRepository{cells: make(map[string]domain.AvailabilityCell)}
}

func (r *cellRepository) Get(ctx context.Context, key domain.CellKey) (*domain.AvailabilityCell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cells[key.ID()]; ok {
		return &c, nil
	}
	return domain.NewFreeCell(key), nil
}

func (r *cellRepository) CompareAndSwap(ctx context.Context, cell *domain.AvailabilityCell, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cell.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := cell.Key().ID()
	var current int64
	if c, ok := r.cells[id]; ok {
		current = c.Version
	}
	if current != expectedVersion {
		return domain.ErrVersionConflict
	}
	stored := *cell
	stored.Version = expectedVersion + 1
	stored.UpdatedOn = time.Now().UTC()
	r.cells[id] = stored
	cell.Version = stored.Version
	cell.UpdatedOn = stored.UpdatedOn
	return nil
}

func (r *cellRepository) ListRange(ctx context.Context, unitIDs []string, from, to time.Time) ([]domain.AvailabilityCell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	units := make(map[string]struct{}, len(unitIDs))
	for _, u := range unitIDs {
		units[u] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AvailabilityCell
	for _, c := range r.cells {
		if _, ok := units[c.UnitID]; !ok {
			continue
		}
		if c.Date.Before(from) || !c.Date.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID < out[j].UnitID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

type bookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking
	payments repository.PaymentRepository
}

// NewBookingRepository returns a booking store that consults payments when listing expirable holds.
func NewBookingRepository(payments repository.PaymentRepository) repository.BookingRepository {
	return &bookingRepository{bookings: make(map[string]*domain.Booking), payments: payments}
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bookings[b.ID]; exists {
		return domain.ErrVersionConflict
	}
	now := time.Now().UTC()
	if b.CreatedOn.IsZero() {
		b.CreatedOn = now
	}
	b.UpdatedOn = now
	b.Version = 1
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b.Clone(), nil
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.bookings[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	b.UpdatedOn = time.Now().UTC()
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *bookingRepository) ListByRenter(ctx context.Context, renterID string, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	r.mu.RLock()
	var matched []domain.Booking
	for _, b := range r.bookings {
		if b.RenterID != renterID {
			continue
		}
		if status != "" && string(b.Status) != status {
			continue
		}
		matched = append(matched, *b.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedOn.After(matched[j].CreatedOn) })
	total := int32(len(matched))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.Booking{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *bookingRepository) ListExpirable(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Booking, error) {
	lapsed := r.filter(0, func(b *domain.Booking) bool {
		return b.Status == domain.BookingStatusTentative && b.CreatedOn.Before(cutoff)
	})
	out := make([]domain.Booking, 0, len(lapsed))
	for _, b := range lapsed {
		if limit > 0 && int32(len(out)) == limit {
			break
		}
		payments, err := r.payments.ListByBooking(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if !hasOpenPayment(payments) {
			out = append(out, b)
		}
	}
	return out, nil
}

func hasOpenPayment(payments []domain.Payment) bool {
	for _, p := range payments {
		if p.Verification != domain.PaymentRejected {
			return true
		}
	}
	return false
}

func (r *bookingRepository) ListCompletable(ctx context.Context, day time.Time, limit int32) ([]domain.Booking, error) {
	day = domain.TruncateDate(day)
	return r.filter(limit, func(b *domain.Booking) bool {
		return b.Status == domain.BookingStatusConfirmed && b.FullyPaid && !b.CheckOut.After(day)
	}), nil
}

func (r *bookingRepository) ListUpdatedAfter(ctx context.Context, after repository.BookingCursor, limit int32) ([]domain.Booking, error) {
	r.mu.RLock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.UpdatedOn.After(after.UpdatedOn) || (b.UpdatedOn.Equal(after.UpdatedOn) && b.ID > after.ID) {
			out = append(out, *b.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedOn.Equal(out[j].UpdatedOn) {
			return out[i].UpdatedOn.Before(out[j].UpdatedOn)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *bookingRepository) CountQualifyingByRenter(ctx context.Context, renterID string) (int32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int32
	for _, b := range r.bookings {
		if b.RenterID == renterID && (b.Status == domain.BookingStatusConfirmed || b.Status == domain.BookingStatusCompleted) {
			n++
		}
	}
	return n, nil
}

func (r *bookingRepository) filter(limit int32, keep func(*domain.Booking) bool) []domain.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

type paymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

func NewPaymentRepository() repository.PaymentRepository {
	return &paymentRepository{payments: make(map[string]*domain.Payment)}
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.ID]; exists {
		return domain.ErrVersionConflict
	}
	now := time.Now().UTC()
	if p.CreatedOn.IsZero() {
		p.CreatedOn = now
	}
	p.UpdatedOn = now
	p.Version = 1
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *paymentRepository) Update(ctx context.Context, p *domain.Payment, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.payments[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	p.UpdatedOn = time.Now().UTC()
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.BookingID == bookingID {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out, nil
}

type promoRepository struct {
	mu     sync.RWMutex
	promos map[string]domain.Promo
}

func NewPromoRepository() repository.PromoRepository {
	return &promoRepository{promos: make(map[string]domain.Promo)}
}

func (r *promoRepository) GetByID(ctx context.Context, id string) (*domain.Promo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.promos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *promoRepository) GetByCode(ctx context.Context, code string) (*domain.Promo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.promos {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *promoRepository) Upsert(ctx context.Context, p *domain.Promo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *p
	stored.PackageIDs = append([]string(nil), p.PackageIDs...)
	r.promos[p.ID] = stored
	return nil
}

func (r *promoRepository) ListActive(ctx context.Context) ([]domain.Promo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Promo
	for _, p := range r.promos {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type catalogRepository struct {
	mu       sync.RWMutex
	units    map[string]domain.LodgingUnit
	packages map[string]domain.Package
}

func NewCatalogRepository() repository.CatalogRepository {
	return &catalogRepository{
		units:    make(map[string]domain.LodgingUnit),
		packages: make(map[string]domain.Package),
	}
}

func (r *catalogRepository) GetUnit(ctx context.Context, id string) (*domain.LodgingUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *catalogRepository) ListUnits(ctx context.Context, ids []string) ([]domain.LodgingUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.LodgingUnit, 0, len(ids))
	for _, id := range ids {
		u, ok := r.units[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *catalogRepository) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.UnitIDs = append([]string(nil), p.UnitIDs...)
	return &p, nil
}

func (r *catalogRepository) UpsertUnit(ctx context.Context, u *domain.LodgingUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[u.ID] = *u
	return nil
}

func (r *catalogRepository) UpsertPackage(ctx context.Context, p *domain.Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *p
	stored.UnitIDs = append([]string(nil), p.UnitIDs...)
	r.packages[p.ID] = stored
	return nil
}
