package repository

import "github.com/vedran77/agroconnect/internal/domain"

type roleColumns struct {
	participant string
	unread      string
}

var columnsByRole = map[domain.Role]roleColumns{
	domain.RoleFarmer:    {participant: "farmer_id", unread: "unread_farmer"},
	domain.RoleShopOwner: {participant: "shop_id", unread: "unread_shop"},
}

// ParticipantColumn names the SQL column holding the role's user id.
func ParticipantColumn(role domain.Role) string {
	return columnsByRole[role].participant
}

// UnreadColumn names the SQL column holding the role's unread counter.
func UnreadColumn(role domain.Role) string {
	return columnsByRole[role].unread
}
