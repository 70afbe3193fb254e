package health

import "context"

// Pinger checks persistence availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog reports the collections currently served.
type Catalog interface {
	ListCollections() []string
}
