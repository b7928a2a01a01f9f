package services

import "errors"

// Sentinel errors returned by the core services. Transport adapters map them
// to HTTP statuses or socket acks with errors.Is; internal failures are
// wrapped and surface as 500s.
var (
	// Validation
	ErrSelfConnection         = errors.New("cannot send a connection request to yourself")
	ErrSelfConversation       = errors.New("cannot open a conversation with yourself")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrEmptyMessage           = errors.New("message text must not be empty")
	ErrInvalidDeleteScope     = errors.New("delete scope must be 'me' or 'everyone'")
	ErrInvalidReplyTarget     = errors.New("replied-to message does not belong to this conversation")

	// Not found
	ErrRecipientNotFound         = errors.New("recipient user does not exist")
	ErrConnectionRequestNotFound = errors.New("connection request does not exist")
	ErrConversationNotFound      = errors.New("conversation does not exist")

	// Conflict
	ErrConnectionRequestExists = errors.New("a pending or accepted connection request already exists between these users")

	// Authorization
	ErrNotRecipientOfRequest = errors.New("you are not the recipient of this connection request")
	ErrNotSenderOfRequest    = errors.New("you are not the sender of this connection request")
	ErrNotPartyToRequest     = errors.New("you are not a party to this connection request")
	ErrRequestNotPending     = errors.New("this connection request is not pending")
	ErrRequestStillPending   = errors.New("a pending connection request cannot be deleted")
	ErrNotParticipant        = errors.New("you are not a participant of this conversation")
	ErrNotMessageSender      = errors.New("only the sender may delete a message for everyone")
	ErrNotConnected          = errors.New("users must have an accepted connection to exchange messages")
	ErrConnectionNotFound    = errors.New("no accepted connection exists between these users")
)
