package models

import "gorm.io/gorm"

// ConnectionRequestStatus defines the status of a connection request.
type ConnectionRequestStatus string

const (
	ConnectionRequestStatusPending  ConnectionRequestStatus = "pending"
	ConnectionRequestStatusAccepted ConnectionRequestStatus = "accepted"
	ConnectionRequestStatusRejected ConnectionRequestStatus = "rejected"
)

// IsTerminal reports whether the status is a final state.
// Terminal requests may be deleted by either party for display cleanup.
func (s ConnectionRequestStatus) IsTerminal() bool {
	return s == ConnectionRequestStatusAccepted || s == ConnectionRequestStatusRejected
}

// ConnectionRequest is a proposal from one user to another to become mutually
// chat-eligible. At most one non-rejected request exists for any unordered
// pair of users at a time; a rejected request is replaced, not accumulated.
type ConnectionRequest struct {
	BaseModel
	SenderID    uint `gorm:"not null;index:idx_connection_request_users" json:"sender"`
	RecipientID uint `gorm:"not null;index:idx_connection_request_users" json:"recipient"`

	// PairLow/PairHigh mirror the endpoints in canonical order so the partial
	// unique index can hold the one-active-request-per-pair invariant even
	// under concurrent sends. Kept in sync by BeforeCreate.
	PairLow  uint `gorm:"not null;uniqueIndex:uniq_connection_request_active_pair,where:status <> 'rejected'" json:"-"`
	PairHigh uint `gorm:"not null;uniqueIndex:uniq_connection_request_active_pair,where:status <> 'rejected'" json:"-"`

	Status         ConnectionRequestStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Message        string                  `gorm:"type:text" json:"message"`
	InitialMessage string                  `gorm:"type:text" json:"initialMessage"`
	ServiceName    string                  `gorm:"type:varchar(255)" json:"serviceName"`
}

// BeforeCreate derives the canonical pair columns from the endpoints.
func (r *ConnectionRequest) BeforeCreate(*gorm.DB) error {
	r.PairLow, r.PairHigh = r.SenderID, r.RecipientID
	if r.PairLow > r.PairHigh {
		r.PairLow, r.PairHigh = r.PairHigh, r.PairLow
	}
	return nil
}

// TableName specifies the table name for the ConnectionRequest model.
func (ConnectionRequest) TableName() string {
	return "connection_requests"
}

// OtherParty returns the counterpart of userID in the request.
// Returns 0 if userID is not a party to the request.
func (r *ConnectionRequest) OtherParty(userID uint) uint {
	switch userID {
	case r.SenderID:
		return r.RecipientID
	case r.RecipientID:
		return r.SenderID
	}
	return 0
}

// Involves reports whether userID is either side of the request.
func (r *ConnectionRequest) Involves(userID uint) bool {
	return r.SenderID == userID || r.RecipientID == userID
}

// ConnectionRequestWithProfile is a DTO that includes connection request
// details along with basic information about the counterpart user.
// Useful for API responses for listing pending or sent requests.
type ConnectionRequestWithProfile struct {
	ConnectionRequest
	Profile *UserProfile `json:"profile"`
}
