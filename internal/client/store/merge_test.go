package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

func msgAt(id string, at time.Time) models.Message {
	return models.Message{ID: id, ChatID: "c1", SenderID: "u2", Type: models.MessageText, CreatedAt: at}
}

func TestMerge_DeduplicatesByID(t *testing.T) {
	base := time.Now()
	existing := []models.Message{msgAt("m1", base), msgAt("m2", base.Add(time.Second))}
	incoming := []models.Message{msgAt("m2", base.Add(time.Second)), msgAt("m3", base.Add(2*time.Second))}

	out := Merge(existing, incoming)

	assert.Len(t, out, 3)
	ids := map[string]int{}
	for _, m := range out {
		ids[m.ID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s appears %d times", id, n)
	}
}

func TestMerge_ExistingEntryWinsOverIncomingDuplicate(t *testing.T) {
	base := time.Now()
	read := msgAt("m1", base)
	read.IsRead = true
	stale := msgAt("m1", base)

	out := Merge([]models.Message{read}, []models.Message{stale})

	assert.Len(t, out, 1)
	assert.True(t, out[0].IsRead, "refetched copy must not clobber local read state")
}

func TestMerge_SortsAscendingByCreatedAt(t *testing.T) {
	base := time.Now()
	existing := []models.Message{msgAt("m3", base.Add(2 * time.Second))}
	incoming := []models.Message{msgAt("m1", base), msgAt("m2", base.Add(time.Second))}

	out := Merge(existing, incoming)

	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{out[0].ID, out[1].ID, out[2].ID})
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].CreatedAt.Before(out[i-1].CreatedAt))
	}
}

func TestMerge_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	at := time.Now()
	existing := []models.Message{msgAt("a", at), msgAt("b", at)}
	incoming := []models.Message{msgAt("c", at)}

	out := Merge(existing, incoming)

	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestMerge_DropsEntriesWithoutID(t *testing.T) {
	at := time.Now()
	out := Merge(nil, []models.Message{{ChatID: "c1", CreatedAt: at}, msgAt("m1", at)})

	assert.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := time.Now()
	existing := []models.Message{msgAt("m2", base.Add(time.Second)), msgAt("m1", base)}
	incoming := []models.Message{msgAt("m0", base.Add(-time.Second))}

	_ = Merge(existing, incoming)

	assert.Equal(t, "m2", existing[0].ID, "existing slice reordered by Merge")
	assert.Equal(t, "m0", incoming[0].ID)
}
