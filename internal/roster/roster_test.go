package roster

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

func setup(t *testing.T) (*store.Store, *Roster) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SqlitePath: filepath.Join(t.TempDir(), "roster.db"),
	}, false, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	st := store.New(db)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.CreateList(ctx, &store.List{
		ID: "LIST1", Name: "Raid", GuildID: 1, ChannelID: 1, StaticChannelID: 1, CreatedBy: "admin",
	}))
	return st, New(st)
}

func TestRegisterTwice(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	out, err := r.Register(ctx, "LIST1", 1, Member{UserID: "100", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, Registered, out)

	out, err = r.Register(ctx, "LIST1", 1, Member{UserID: "100", DisplayName: "Alice Renamed"})
	require.NoError(t, err)
	assert.Equal(t, AlreadyRegistered, out)

	members, err := r.Members(ctx, "LIST1", 1)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].DisplayName, "重复登记不更新显示名称")
}

func TestRegisterRejectsUnknownListAndEmptyUser(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "LIST1", 2, Member{UserID: "100"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = r.Register(ctx, "NOPE0", 1, Member{UserID: "100"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = r.Register(ctx, "LIST1", 1, Member{UserID: "  "})
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestRegisterMany(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "LIST1", 1, Member{UserID: "2", DisplayName: "Bob"})
	require.NoError(t, err)

	res, err := r.RegisterMany(ctx, "LIST1", 1, []Member{
		{UserID: "1", DisplayName: "Alice"},
		{UserID: "2", DisplayName: "Bob"},
		{UserID: "1", DisplayName: "Alice"},
		{UserID: "3", DisplayName: "Carol"},
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, Registered, res.Outcomes[0].Outcome)
	assert.Equal(t, AlreadyRegistered, res.Outcomes[1].Outcome)
	assert.Equal(t, Registered, res.Outcomes[2].Outcome)
	assert.Equal(t, []Member{{UserID: "1", DisplayName: "Alice"}, {UserID: "3", DisplayName: "Carol"}}, res.Registered())

	require.NotNil(t, res.Snapshot)
	require.Len(t, res.Snapshot.Participants, 3)
	assert.Equal(t, "2", res.Snapshot.Participants[0].UserID)

	raw, err := json.Marshal(res.Outcomes[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"2","displayName":"Bob","outcome":"already_registered"}`, string(raw))
}

func TestRemoveDeletesRollback(t *testing.T) {
	st, r := setup(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "LIST1", 1, Member{UserID: "100", DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = st.UpsertRollback(ctx, &store.Rollback{ListID: "LIST1", UserID: "100", UserName: "Alice", Text: "t"})
	require.NoError(t, err)

	snap, err := r.Remove(ctx, "LIST1", 1, "100")
	require.NoError(t, err)
	assert.Empty(t, snap.Participants)
	assert.Empty(t, snap.Rollbacks)

	_, err = r.Remove(ctx, "LIST1", 1, "100")
	assert.ErrorIs(t, err, store.ErrNotRegistered)
}

func TestParseUserIDs(t *testing.T) {
	text := "<@123> <@!456> 123456789012345678 and <@123> again, short 12345, " +
		"long 12345678901234567890, repeat 123456789012345678"
	assert.Equal(t, []string{"123", "456", "123456789012345678"}, ParseUserIDs(text))

	assert.Equal(t, []string{"111111111111111111"}, ParseUserIDs("<@111111111111111111> 111111111111111111"))
	assert.Empty(t, ParseUserIDs("nobody here"))
}
