package domain

import "fmt"

// Role is the side a user acts on within a conversation.
type Role string

const (
	RoleFarmer    Role = "farmer"
	RoleShopOwner Role = "shop_owner"
)

type roleEntry struct {
	counterpart Role
	field       string
	arrange     func(self, other Participant) (farmer, shop Participant)
	participant func(c *Conversation) Participant
	unread      func(u *UnreadCounters) *int
}

var roleTable = map[Role]roleEntry{
	RoleFarmer: {
		counterpart: RoleShopOwner,
		field:       "farmer",
		arrange:     func(self, other Participant) (Participant, Participant) { return self, other },
		participant: func(c *Conversation) Participant { return c.Farmer },
		unread:      func(u *UnreadCounters) *int { return &u.Farmer },
	},
	RoleShopOwner: {
		counterpart: RoleFarmer,
		field:       "shop",
		arrange:     func(self, other Participant) (Participant, Participant) { return other, self },
		participant: func(c *Conversation) Participant { return c.Shop },
		unread:      func(u *UnreadCounters) *int { return &u.Shop },
	},
}

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// Counterpart returns the role on the other side of a conversation.
func (r Role) Counterpart() Role {
	return roleTable[r].counterpart
}

// Field is the prefix of request fields naming a member in role r
// ("farmer_id", "shop_name"). Empty for an invalid role.
func (r Role) Field() string {
	return roleTable[r].field
}

// Arrange places self, acting in role r, and the counterpart into the
// farmer and shop positions of a conversation. ok is false for an invalid
// role.
func (r Role) Arrange(self, other Participant) (farmer, shop Participant, ok bool) {
	entry, ok := roleTable[r]
	if !ok {
		return Participant{}, Participant{}, false
	}
	farmer, shop = entry.arrange(self, other)
	return farmer, shop, true
}

// Participant returns the member of c acting in role r.
func (r Role) Participant(c *Conversation) Participant {
	entry, ok := roleTable[r]
	if !ok {
		return Participant{}
	}
	return entry.participant(c)
}

// Unread returns the counter owned by role r, i.e. the number of messages
// from the counterpart that r has not read yet.
func (r Role) Unread(u *UnreadCounters) *int {
	entry, ok := roleTable[r]
	if !ok {
		return nil
	}
	return entry.unread(u)
}

// Identity is an authenticated caller as supplied by the identity provider.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}
