// Package firestore keeps availability cells as one Cloud Firestore document per (unit, night).
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/repository"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type cellRecord struct {
	UnitID    string    `firestore:"unit_id"`
	Night     string    `firestore:"night"`
	Status    string    `firestore:"status"`
	BookingID string    `firestore:"booking_id"`
	Version   int64     `firestore:"version"`
	UpdatedOn time.Time `firestore:"updated_on"`
}

func (r cellRecord) toDomain() (*domain.AvailabilityCell, error) {
	night, err := time.Parse(domain.DateLayout, r.Night)
	if err != nil {
		return nil, fmt.Errorf("corrupt cell night %q: %w", r.Night, err)
	}
	return &domain.AvailabilityCell{
		UnitID:    r.UnitID,
		Date:      night,
		Status:    domain.CellStatus(r.Status),
		BookingID: r.BookingID,
		Version:   r.Version,
		UpdatedOn: r.UpdatedOn,
	}, nil
}

type CellRepository struct {
	client     *fs.Client
	collection string
}

// NewClient opens a Firestore client. FIRESTORE_EMULATOR_HOST is honoured by the SDK.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*fs.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := fs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

func NewCellRepository(client *fs.Client, collection string) *CellRepository {
	return &CellRepository{client: client, collection: collection}
}

var _ repository.CellRepository = (*CellRepository)(nil)

func (r *CellRepository) doc(key domain.CellKey) *fs.DocumentRef {
	return r.client.Collection(r.collection).Doc(key.ID())
}

func (r *CellRepository) Get(ctx context.Context, key domain.CellKey) (*domain.AvailabilityCell, error) {
	snap, err := r.doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return domain.NewFreeCell(key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cell %s: %w", key, err)
	}
	var rec cellRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, err
	}
	return rec.toDomain()
}

// CompareAndSwap creates the document when expectedVersion is 0. Otherwise it runs a
// single-attempt transaction so a concurrent commit aborts this one instead of retrying it.
func (r *CellRepository) CompareAndSwap(ctx context.Context, cell *domain.AvailabilityCell, expectedVersion int64) error {
	if err := cell.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec := cellRecord{
		UnitID:    cell.UnitID,
		Night:     cell.Date.Format(domain.DateLayout),
		Status:    string(cell.Status),
		BookingID: cell.BookingID,
		Version:   expectedVersion + 1,
		UpdatedOn: now,
	}
	ref := r.doc(cell.Key())

	logger.ExternalServiceCall("firestore", "cells.compare_and_swap", "cell", cell.Key().ID(), "expectedVersion", expectedVersion)
	var err error
	if expectedVersion == 0 {
		_, err = ref.Create(ctx, rec)
	} else {
		err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return domain.ErrVersionConflict
				}
				return err
			}
			var current cellRecord
			if err := snap.DataTo(&current); err != nil {
				return err
			}
			if current.Version != expectedVersion {
				return domain.ErrVersionConflict
			}
			return tx.Set(ref, rec)
		}, fs.MaxAttempts(1))
	}
	err = mapError(err)
	logger.ExternalServiceResult("firestore", "cells.compare_and_swap", err, "cell", cell.Key().ID())
	if err != nil {
		return err
	}
	cell.Version = rec.Version
	cell.UpdatedOn = now
	return nil
}

func mapError(err error) error {
	if err == nil || errors.Is(err, domain.ErrVersionConflict) {
		return err
	}
	switch status.Code(err) {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return domain.ErrVersionConflict
	}
	return err
}

// ListRange queries one unit at a time. The equality on unit_id with a range on night needs
// the composite index in db/firestore/firestore.indexes.json (unit_id, night ascending).
func (r *CellRepository) ListRange(ctx context.Context, unitIDs []string, from, to time.Time) ([]domain.AvailabilityCell, error) {
	var cells []domain.AvailabilityCell
	for _, unitID := range unitIDs {
		iter := r.client.Collection(r.collection).
			Where("unit_id", "==", unitID).
			Where("night", ">=", from.Format(domain.DateLayout)).
			Where("night", "<", to.Format(domain.DateLayout)).
			Documents(ctx)
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				iter.Stop()
				return nil, fmt.Errorf("failed to list cells for %s: %w", unitID, err)
			}
			var rec cellRecord
			if err := snap.DataTo(&rec); err != nil {
				iter.Stop()
				return nil, err
			}
			cell, err := rec.toDomain()
			if err != nil {
				iter.Stop()
				return nil, err
			}
			cells = append(cells, *cell)
		}
		iter.Stop()
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].UnitID != cells[j].UnitID {
			return cells[i].UnitID < cells[j].UnitID
		}
		return cells[i].Date.Before(cells[j].Date)
	})
	return cells, nil
}
