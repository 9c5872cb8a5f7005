package rostersource

import "context"

// Source fetches the raw roster CSV document. Parsing and row validation
// belong to the roster loader; the source only moves bytes.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}
