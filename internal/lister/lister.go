package lister

import "context"

// Lister enumerates candidate items for a channel reference as a lazy,
// finite, push-based sequence: yield is called once per accepted record in
// discovery order, and List returns once the backend is exhausted or yield
// returns an error. Implementations hold no more than the current batch in
// memory, so a restarted run simply re-enumerates from the backend rather
// than resuming an in-memory cursor.
type Lister interface {
	List(ctx context.Context, channelRef string, filters Filters, yield func(SourceMeta) error) error
}
