package shim

import "context"

// Shim adapts one vendor API to the common data request contract.
type Shim interface {
	Key() string
	Label() string
	DataTypes() []string
	GetData(ctx context.Context, req DataRequest, access AccessParameters) (Result, error)
}

// AccountValidator is implemented by shims that require vendor specific access parameters.
type AccountValidator interface {
	ValidateAccount(access AccessParameters) error
}

// Fetcher executes authorized vendor requests and returns the raw response body.
type Fetcher interface {
	Fetch(ctx context.Context, req VendorRequest) ([]byte, error)
}

// Repository persists access parameters keyed by shim and username.
type Repository interface {
	Get(ctx context.Context, shimKey, username string) (AccessParameters, bool, error)
	Save(ctx context.Context, params AccessParameters) (AccessParameters, error)
	Delete(ctx context.Context, shimKey, username string) (bool, error)
	List(ctx context.Context) ([]AccessParameters, error)
}
