package guild

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
)

func TestIsAdminByRole(t *testing.T) {
	s := Settings{AdminRoleIDs: []int64{10, 20}}
	assert.True(t, s.IsAdmin(1, []int64{5, 20}))
	assert.False(t, s.IsAdmin(1, []int64{5}))
	assert.False(t, s.IsAdmin(1, nil))
}

func TestIsAdminByUser(t *testing.T) {
	s := Settings{AdminUserIDs: []int64{42}}
	assert.True(t, s.IsAdmin(42, nil))
	assert.False(t, s.IsAdmin(43, []int64{42}))
}

func TestFromConfig(t *testing.T) {
	dir := FromConfig(map[string]config.GuildEntry{
		"1429544000188317831": {StatusChannelID: 7, AdminRoleIDs: []int64{1}},
		"not-a-number":        {StatusChannelID: 8},
	})
	assert.Len(t, dir, 1)

	s, ok := dir.Lookup(1429544000188317831)
	assert.True(t, ok)
	assert.Equal(t, int64(7), s.StatusChannelID)
	assert.Equal(t, int64(1429544000188317831), s.GuildID)

	_, ok = dir.Lookup(1)
	assert.False(t, ok)
}

func TestIsAdminUnknownGuild(t *testing.T) {
	dir := StaticDirectory{1: {AdminUserIDs: []int64{42}}}
	assert.True(t, IsAdmin(dir, 1, 42, nil))
	assert.False(t, IsAdmin(dir, 2, 42, nil))
	assert.False(t, IsAdmin(nil, 1, 42, nil))
}
