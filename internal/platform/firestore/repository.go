package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

var (
	errNilProvider  = errors.New("firestore: provider is nil")
	errNoCollection = errors.New("firestore: collection name is required")
	errNoDocumentID = errors.New("firestore: document id is required")
)

// Document pairs a decoded record with the snapshot timestamps Firestore reported for it.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query before it runs.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection is a typed view over one Firestore collection. Records are written as-is and read
// back with the client's struct decoding, so T carries `firestore:"..."` tags.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed view to the named collection.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name reports the collection path.
func (c *Collection[T]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Create writes value only when no document exists under id. A clash yields an *Error whose
// IsAlreadyExists reports true.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	return c.write(ctx, "create", id, func(ref *firestore.DocumentRef) error {
		_, err := ref.Create(ctx, value)
		return err
	})
}

// Put overwrites the document under id, creating it when missing.
func (c *Collection[T]) Put(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	return c.write(ctx, "put", id, func(ref *firestore.DocumentRef) error {
		_, err := ref.Set(ctx, value, opts...)
		return err
	})
}

// Patch applies field updates to an existing document.
func (c *Collection[T]) Patch(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) error {
	return c.write(ctx, "patch", id, func(ref *firestore.DocumentRef) error {
		_, err := ref.Update(ctx, updates, preconds...)
		return err
	})
}

// Delete removes the document. A missing document is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.write(ctx, "delete", id, func(ref *firestore.DocumentRef) error {
		_, err := ref.Delete(ctx)
		return err
	})
}

// Get reads and decodes the document under id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.Decode(snap)
}

// List runs the query produced by build against the collection and decodes every match.
func (c *Collection[T]) List(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(c.op("list"), err)
		}
		doc, err := c.Decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

// Decode hydrates a snapshot obtained elsewhere, usually from tx.Get inside a transaction.
func (c *Collection[T]) Decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	if snap == nil || snap.Ref == nil {
		return Document[T]{}, fmt.Errorf("firestore: %s: empty snapshot", c.Name())
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.Name(), snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

// Ref resolves the document reference for id, for reads and writes issued inside a transaction.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, WrapError(c.op("ref"), errNoDocumentID)
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) write(ctx context.Context, action, id string, apply func(*firestore.DocumentRef) error) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	return WrapError(c.op(action), apply(ref))
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	switch {
	case c == nil || c.provider == nil:
		return nil, WrapError(c.op("collection"), errNilProvider)
	case c.name == "":
		return nil, WrapError(c.op("collection"), errNoCollection)
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	if name := c.Name(); name != "" {
		return name + "." + action
	}
	return "firestore." + action
}
