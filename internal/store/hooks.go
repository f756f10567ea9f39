package store

import (
	"context"
	"time"

	"github.com/crawlforge/harvester/pkg/log"
)

type beginKey struct{}

// Hooks satisfies the sqlhooks.Hooks interface, logging query timing the
// same way the teacher's internal/repository.Hooks does.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok {
		log.Debugf("store: query took %s", time.Since(begin))
	}
	return ctx, nil
}
