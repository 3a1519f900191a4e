package apperrors

var (
	// Connection admission
	ErrAuthRejected = Unauthorized("missing, malformed or expired credential")

	// Malformed requests: rejected while the connection stays open
	ErrInvalidParticipant = InvalidArg("participant is unknown or identical to the caller")
	ErrInvalidMessage     = InvalidArg("message is empty or of an unrecognized type")

	// Actions on resources the caller does not own, silently ignored upstream
	ErrNotAuthorized = Forbidden("caller does not own this resource")

	// Dangling references, ignored upstream
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrUserNotFound         = NotFound("user not found")

	// Credential service
	ErrUsernameTaken      = AlreadyExists("username is already taken")
	ErrInvalidCredentials = Unauthorized("invalid username or password")
)

func CollaboratorFailure(name string, cause error) error {
	return Wrap(CodeUnavailable, name+" collaborator failed", cause)
}
