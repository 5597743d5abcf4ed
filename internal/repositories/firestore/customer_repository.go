package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stocktide/api/internal/domain"
	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/repositories"
)

const customersCollection = "customers"

type customerDocument struct {
	Name      string    `firestore:"name"`
	NameLower string    `firestore:"nameLower"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone"`
	City      string    `firestore:"city"`
	Segment   string    `firestore:"segment"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newCustomerDocument(customer domain.Customer) customerDocument {
	return customerDocument{
		Name:      customer.Name,
		NameLower: strings.ToLower(strings.TrimSpace(customer.Name)),
		Email:     customer.Email,
		Phone:     customer.Phone,
		City:      customer.City,
		Segment:   string(customer.Segment),
		CreatedAt: customer.CreatedAt.UTC(),
		UpdatedAt: customer.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:        id,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		City:      d.City,
		Segment:   domain.CustomerSegment(d.Segment),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// CustomerRepository persists buyer records in Firestore.
type CustomerRepository struct {
	provider  *pfirestore.Provider
	customers *pfirestore.BaseRepository[customerDocument]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil)
	return &CustomerRepository{provider: provider, customers: base}, nil
}

func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.provider == nil {
		return errors.New("customer repository not initialised")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer insert: id is required")
	}
	ref, err := r.customers.DocumentRef(ctx, customer.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newCustomerDocument(customer)); err != nil {
		return pfirestore.WrapError("customers.insert", err)
	}
	return nil
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.provider == nil {
		return errors.New("customer repository not initialised")
	}
	ref, err := r.customers.DocumentRef(ctx, customer.ID)
	if err != nil {
		return err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("customers.update", err)
	}
	var existing customerDocument
	if err := snap.DataTo(&existing); err != nil {
		return fmt.Errorf("decode customer %s: %w", customer.ID, err)
	}
	doc := newCustomerDocument(customer)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("customers.update", err)
	}
	return nil
}

func (r *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	if r == nil || r.provider == nil {
		return errors.New("customer repository not initialised")
	}
	ref, err := r.customers.DocumentRef(ctx, customerID)
	if err != nil {
		return err
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("customers.delete", err)
	}
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.provider == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	ref, err := r.customers.DocumentRef(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.get", err)
	}
	var doc customerDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Customer{}, fmt.Errorf("decode customer %s: %w", customerID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Customer]{}, errors.New("customer repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	var cursor *listCursor
	if filter.Pagination.PageToken != "" {
		decoded, err := decodeListCursor(filter.Pagination.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, fmt.Errorf("customers.list: %w", err)
		}
		cursor = &decoded
	}

	docs, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Segment != nil {
			q = q.Where("segment", "==", string(*filter.Segment))
		}
		if search != "" {
			q = q.Where("nameLower", ">=", search).
				Where("nameLower", "<", search+"").
				OrderBy("nameLower", firestore.Asc).
				OrderBy(firestore.DocumentID, firestore.Asc)
			if cursor != nil {
				q = q.StartAfter(cursor.Key, cursor.ID)
			}
		} else {
			q = q.OrderBy("createdAt", firestore.Desc).
				OrderBy(firestore.DocumentID, firestore.Desc)
			if cursor != nil {
				q = q.StartAfter(cursor.At, cursor.ID)
			}
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}

	page := domain.CursorPage[domain.Customer]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeListCursor(listCursor{At: last.Data.CreatedAt, Key: last.Data.NameLower, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, fmt.Errorf("customers.list: encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}
