package services

import "errors"

var (
	// ErrChatwootUnavailable marks transport failures and 5xx answers. List
	// and read callers treat it as "no data" instead of failing.
	ErrChatwootUnavailable = errors.New("chatwoot unavailable")

	// ErrChatwootNotFound is a 404 on an endpoint that must exist, which
	// usually means a wrong base URL or account id.
	ErrChatwootNotFound = errors.New("chatwoot endpoint not found")

	ErrNoGatewayNumber    = errors.New("no whatsapp number available")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrStepNotFound       = errors.New("bot step not found")
	ErrNoInbox            = errors.New("no inbox available")
	ErrConversationCreate = errors.New("could not create conversation")
	ErrSessionInactive    = errors.New("bot session is not active")
	ErrFlowInactive       = errors.New("bot flow is not active")
)
