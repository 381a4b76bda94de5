package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Document is a decoded snapshot.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder converts an entity into a Firestore-compatible value.
type Encoder[T any] func(value T) (any, error)

// Collection gives typed access to one top-level collection.
type Collection[T any] struct {
	provider *Provider
	name     string
	encode   Encoder[T]
}

// NewCollection binds a collection. A nil encoder stores values as-is using their firestore tags.
func NewCollection[T any](provider *Provider, name string, encode Encoder[T]) *Collection[T] {
	if encode == nil {
		encode = func(value T) (any, error) { return value, nil }
	}
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name), encode: encode}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Ref returns the document reference for id.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: collection has no provider")
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("firestore: document id is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

// CreateInTx stages the creation of id within tx. The transaction fails with a conflict if the
// document already exists.
func (c *Collection[T]) CreateInTx(tx *firestore.Transaction, ref *firestore.DocumentRef, value T) error {
	payload, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("firestore: encode %s/%s: %w", c.name, ref.ID, err)
	}
	return tx.Create(ref, payload)
}

// Get reads and decodes id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.name+".get", err)
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, id, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}
