package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

type txContextKey struct{}

// withTransaction stashes the active transaction so repository calls made
// inside Registry.RunInTx join it instead of issuing standalone writes.
func withTransaction(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func transactionFrom(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

func getDocument(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

func createDocument(ctx context.Context, ref *firestore.DocumentRef, payload any) error {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Create(ref, payload)
	}
	_, err := ref.Create(ctx, payload)
	return err
}

func setDocument(ctx context.Context, ref *firestore.DocumentRef, payload any) error {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Set(ref, payload)
	}
	_, err := ref.Set(ctx, payload)
	return err
}

func deleteDocument(ctx context.Context, ref *firestore.DocumentRef) error {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Delete(ref)
	}
	_, err := ref.Delete(ctx)
	return err
}
