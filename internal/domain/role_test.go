package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole("farmer")
	require.NoError(t, err)
	assert.Equal(t, RoleFarmer, r)

	r, err = ParseRole("shop_owner")
	require.NoError(t, err)
	assert.Equal(t, RoleShopOwner, r)

	_, err = ParseRole("admin")
	assert.Error(t, err)

	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestRoleTable(t *testing.T) {
	conv := &Conversation{
		Farmer: Participant{ID: "f1", Name: "Alice"},
		Shop:   Participant{ID: "s1", Name: "Green Valley"},
		Unread: UnreadCounters{Farmer: 2, Shop: 5},
	}

	assert.Equal(t, RoleShopOwner, RoleFarmer.Counterpart())
	assert.Equal(t, RoleFarmer, RoleShopOwner.Counterpart())

	assert.Equal(t, "f1", RoleFarmer.Participant(conv).ID)
	assert.Equal(t, "Green Valley", RoleShopOwner.Participant(conv).Name)

	assert.Equal(t, 2, *RoleFarmer.Unread(&conv.Unread))
	*RoleShopOwner.Unread(&conv.Unread) = 0
	assert.Equal(t, 0, conv.Unread.Shop)

	assert.Nil(t, Role("admin").Unread(&conv.Unread))
	assert.Equal(t, Participant{}, Role("admin").Participant(conv))
}

func TestConversation_HasParticipant(t *testing.T) {
	conv := &Conversation{
		Farmer: Participant{ID: "f1"},
		Shop:   Participant{ID: "s1"},
	}

	assert.True(t, conv.HasParticipant("f1", RoleFarmer))
	assert.True(t, conv.HasParticipant("s1", RoleShopOwner))
	assert.False(t, conv.HasParticipant("f1", RoleShopOwner))
	assert.False(t, conv.HasParticipant("", RoleFarmer))
	assert.False(t, conv.HasParticipant("f1", Role("admin")))
}

func TestMessage_Before(t *testing.T) {
	now := time.Now()
	a := &Message{CreatedAt: now, Seq: 1}
	b := &Message{CreatedAt: now, Seq: 2}
	c := &Message{CreatedAt: now.Add(-time.Second), Seq: 3}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, c.Before(a))
	assert.True(t, StatusSent.Rank() < StatusDelivered.Rank())
	assert.True(t, StatusDelivered.Rank() < StatusRead.Rank())
}

func TestRole_FieldAndArrange(t *testing.T) {
	assert.Equal(t, "farmer", RoleFarmer.Field())
	assert.Equal(t, "shop", RoleShopOwner.Field())
	assert.Empty(t, Role("admin").Field())

	alice := Participant{ID: "f1", Name: "Alice"}
	greenValley := Participant{ID: "s1", Name: "Green Valley"}

	farmer, shop, ok := RoleFarmer.Arrange(alice, greenValley)
	assert.True(t, ok)
	assert.Equal(t, alice, farmer)
	assert.Equal(t, greenValley, shop)

	farmer, shop, ok = RoleShopOwner.Arrange(greenValley, alice)
	assert.True(t, ok)
	assert.Equal(t, alice, farmer)
	assert.Equal(t, greenValley, shop)

	_, _, ok = Role("admin").Arrange(alice, greenValley)
	assert.False(t, ok)
}
