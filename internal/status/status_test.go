package status

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/rollback-tracker/internal/store"
)

func snapshot() *store.Snapshot {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &store.Snapshot{
		List: store.List{ID: "AB12C", Name: "21:00 | Raid", GuildID: 1},
		Participants: []store.Participant{
			{ListID: "AB12C", UserID: "1", DisplayName: "Alice", HasRollback: true, RegisteredAt: base},
			{ListID: "AB12C", UserID: "2", DisplayName: "Bob", RegisteredAt: base.Add(time.Minute)},
		},
		Rollbacks: []store.Rollback{
			{ListID: "AB12C", UserID: "1", UserName: "Alice", Text: "first", Timestamp: base},
		},
	}
}

func TestProject(t *testing.T) {
	v := Project(snapshot())

	require.Len(t, v.Roster, 2)
	assert.Equal(t, RosterEntry{UserID: "1", DisplayName: "Alice", HasRollback: true, Marker: MarkerSubmitted}, v.Roster[0])
	assert.Equal(t, MarkerMissing, v.Roster[1].Marker)

	assert.Equal(t, "AB12C", v.Status.ListID)
	assert.Equal(t, 2, v.Status.Total)
	assert.Equal(t, 1, v.Status.Completed)
	require.Len(t, v.Status.Entries, 2)
	assert.Equal(t, StatusSubmitted, v.Status.Entries[0].Marker)
	assert.Equal(t, "first", v.Status.Entries[0].Preview)
	assert.Equal(t, StatusMissing, v.Status.Entries[1].Marker)
	assert.Empty(t, v.Status.Entries[1].Preview)
}

func TestPreviewTruncation(t *testing.T) {
	snap := snapshot()
	long := strings.Repeat("ж", PreviewLength+10)
	snap.Rollbacks[0].Text = long

	e := Project(snap).Status.Entries[0]
	assert.True(t, e.Truncated)
	assert.Equal(t, strings.Repeat("ж", PreviewLength)+"...", e.Preview)

	snap.Rollbacks[0].Text = strings.Repeat("x", PreviewLength)
	e = Project(snap).Status.Entries[0]
	assert.False(t, e.Truncated)
	assert.Len(t, e.Preview, PreviewLength)
}

func TestRender(t *testing.T) {
	v := Project(snapshot())

	assert.Equal(t, "✅ <@1>\n❌ <@2>", RenderRoster(v))

	out := RenderStatus(v)
	assert.Contains(t, out, "📊 **СТАТУС ОТКАТОВ: 21:00 | Raid**")
	assert.Contains(t, out, "📋 ID списка: `AB12C`")
	assert.Contains(t, out, "✅ Отправили откат: **1** / **2**")
	assert.Contains(t, out, "🟢 **Alice**\n  └ 📝 first\n\n🔴 **Bob**\n\n")
}

func TestRenderEmpty(t *testing.T) {
	snap := &store.Snapshot{List: store.List{ID: "EMPTY", Name: "Empty"}}
	v := Project(snap)

	assert.Equal(t, "*Список участников пуст*", RenderRoster(v))
	out := RenderStatus(v)
	assert.Contains(t, out, "**0** / **0**")
	assert.True(t, strings.HasSuffix(out, "*Список участников пуст*\n"))
}

func TestProjectionIsIdempotent(t *testing.T) {
	snap := snapshot()
	a, b := Project(snap), Project(snap)
	assert.Equal(t, a, b)
	assert.Equal(t, RenderStatus(a), RenderStatus(b))
	assert.Equal(t, RenderRoster(a), RenderRoster(b))
}
