package records

import "context"

// Store is the persistence boundary of the engine. Reads outside InTx see
// committed state only.
type Store interface {
	// InTx runs fn in one serializable unit of work. fn may be invoked more
	// than once when the backend retries a serialization failure, so it must
	// not have side effects outside the Tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Client(ctx context.Context, id string) (Client, error)
	ClientExists(ctx context.Context, id string) (bool, error)
	Box(ctx context.Context, id string) (Box, error)
	Retrieval(ctx context.Context, id string) (Retrieval, error)
	ListRetrievals(ctx context.Context, q RetrievalQuery) ([]Retrieval, int, error)
}

// Tx is the set of operations available inside InTx. Lock methods return the
// row held until the unit of work ends and ErrNotFound when it is absent.
type Tx interface {
	ClientByID(ctx context.Context, id string) (Client, error)
	InsertClient(ctx context.Context, c Client) error

	LocationByID(ctx context.Context, id string) (StorageLocation, error)
	InsertLocation(ctx context.Context, l StorageLocation) error

	LockBox(ctx context.Context, id string) (Box, error)
	BoxNumberTaken(ctx context.Context, number string) (bool, error)
	InsertBox(ctx context.Context, b Box) error
	UpdateBoxStatus(ctx context.Context, id string, status BoxStatus) error

	LockRetrieval(ctx context.Context, id string) (Retrieval, error)
	InsertRetrieval(ctx context.Context, r Retrieval) error
	UpdateSignatures(ctx context.Context, id string, staff, client string) error
	UpdateArtifact(ctx context.Context, id, path string) error
	DeleteRetrieval(ctx context.Context, id string) error
}
