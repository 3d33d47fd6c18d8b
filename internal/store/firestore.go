package store

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rubbereco/rex-negotiation/internal/model"
)

// FirestoreNegotiationStore keeps negotiations in one collection and a
// subject index in a second one, so a create/create race on the same
// subject is caught inside the transaction.
type FirestoreNegotiationStore struct {
	client       *firestore.Client
	negotiations string
	subjects     string
}

type subjectIndexDoc struct {
	NegotiationID string `firestore:"negotiation_id"`
}

func NewFirestoreNegotiationStore(projectID, collection string) (*FirestoreNegotiationStore, error) {
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreNegotiationStore{
		client:       client,
		negotiations: collection,
		subjects:     collection + "_subjects",
	}, nil
}

func (s *FirestoreNegotiationStore) Load(ctx context.Context, negotiationID string) (model.Negotiation, error) {
	doc, err := s.client.Collection(s.negotiations).Doc(negotiationID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return model.Negotiation{}, ErrNotFound
	}
	if err != nil {
		return model.Negotiation{}, fmt.Errorf("get negotiation: %w", err)
	}
	var n model.Negotiation
	if err := doc.DataTo(&n); err != nil {
		return model.Negotiation{}, fmt.Errorf("decode negotiation: %w", err)
	}
	return n, nil
}

func (s *FirestoreNegotiationStore) LoadBySubject(ctx context.Context, subjectRef string) (model.Negotiation, error) {
	doc, err := s.client.Collection(s.subjects).Doc(subjectKey(subjectRef)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return model.Negotiation{}, ErrNotFound
	}
	if err != nil {
		return model.Negotiation{}, fmt.Errorf("get subject index: %w", err)
	}
	var idx subjectIndexDoc
	if err := doc.DataTo(&idx); err != nil {
		return model.Negotiation{}, fmt.Errorf("decode subject index: %w", err)
	}
	return s.Load(ctx, idx.NegotiationID)
}

func (s *FirestoreNegotiationStore) CompareAndSwap(ctx context.Context, expectedVersion int64, n model.Negotiation) error {
	negRef := s.client.Collection(s.negotiations).Doc(n.NegotiationID)
	subRef := s.client.Collection(s.subjects).Doc(subjectKey(n.SubjectRef))

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(negRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if expectedVersion == 0 {
			if snap.Exists() {
				return ErrConcurrentModification
			}
			subSnap, err := tx.Get(subRef)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if subSnap.Exists() {
				return ErrConcurrentModification
			}
			if err := tx.Set(subRef, subjectIndexDoc{NegotiationID: n.NegotiationID}); err != nil {
				return err
			}
			return tx.Set(negRef, n)
		}

		if !snap.Exists() {
			return ErrNotFound
		}
		version, err := snap.DataAt("version")
		if err != nil {
			return fmt.Errorf("read stored version: %w", err)
		}
		stored, ok := version.(int64)
		if !ok || stored != expectedVersion {
			return ErrConcurrentModification
		}
		return tx.Set(negRef, n)
	})
}

func (s *FirestoreNegotiationStore) ListByParty(ctx context.Context, partyID string, limit int) ([]model.Negotiation, error) {
	var out []model.Negotiation
	for _, field := range []string{"initiator_id", "counterparty_id"} {
		query := s.client.Collection(s.negotiations).
			Where(field, "==", partyID).
			OrderBy("created_at", firestore.Desc)
		if limit > 0 {
			query = query.Limit(limit)
		}

		iter := query.Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return nil, fmt.Errorf("iterate negotiations: %w", err)
			}
			var n model.Negotiation
			if err := doc.DataTo(&n); err != nil {
				iter.Stop()
				return nil, fmt.Errorf("decode negotiation: %w", err)
			}
			out = append(out, n)
		}
		iter.Stop()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FirestoreNegotiationStore) Close() error {
	return s.client.Close()
}

// subjectKey flattens a subject ref into a valid document id. Firestore
// forbids forward slashes in ids; subject refs like "tapping-request/42"
// are legal inputs.
func subjectKey(subjectRef string) string {
	out := make([]byte, 0, len(subjectRef))
	for i := 0; i < len(subjectRef); i++ {
		if subjectRef[i] == '/' {
			out = append(out, ':')
			continue
		}
		out = append(out, subjectRef[i])
	}
	return string(out)
}
