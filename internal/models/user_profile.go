package models

// UserProfile holds the public directory view of a marketplace user.
// The user records themselves are owned by the identity/profile system; this
// service only reads them for display enrichment and candidate search.
type UserProfile struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Verified  bool   `json:"verified"`
}

// TableName points the read-only directory lookups at the marketplace users
// table. This service never migrates or writes it.
func (UserProfile) TableName() string {
	return "users"
}
