package services

import (
	"fmt"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
)

// sectionResolver maps the frontend ids a builder client assigns to its
// sections onto the durable ids the store hands back during a save. It is
// scoped to one save operation and discarded afterwards.
//
// Lookups for an id that was never registered report absence, not an
// error; callers leave the edge null in that case.
type sectionResolver struct {
	ids map[string]int64
}

func newSectionResolver() *sectionResolver {
	return &sectionResolver{ids: make(map[string]int64)}
}

func (r *sectionResolver) register(frontendID string, sectionID int64) error {
	if frontendID == "" {
		return nil
	}
	if _, exists := r.ids[frontendID]; exists {
		return fault.NewClientError(
			fmt.Sprintf("frontend id %q assigned to more than one section", frontendID),
			fault.ErrDuplicateTransient,
		)
	}
	r.ids[frontendID] = sectionID
	return nil
}

func (r *sectionResolver) resolve(frontendID string) (int64, bool) {
	if frontendID == "" {
		return 0, false
	}
	id, ok := r.ids[frontendID]
	return id, ok
}
