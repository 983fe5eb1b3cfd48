package store

import (
	"sort"

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

// Merge reconciles two message lists into one, deduplicated by id and sorted
// ascending by CreatedAt with a stable sort, so equal timestamps keep their
// arrival order. Entries already present win over incoming duplicates: a
// history refetch never clobbers mutable fields (IsRead) that a live arrival
// already set. Incoming entries without an id are dropped. Pure: neither
// input is mutated.
func Merge(existing, incoming []models.Message) []models.Message {
	out := make([]models.Message, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	for _, m := range existing {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range incoming {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
