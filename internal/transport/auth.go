package transport

import "context"

// AuthMode distinguishes API-key auth from a ChatGPT-subscription OAuth
// session, used to gate request compression per spec.md §4.H.
type AuthMode string

const (
	AuthModeAPIKey  AuthMode = "api_key"
	AuthModeChatGPT AuthMode = "chatgpt"
)

// Auth is the credential handed to a transport for one request.
type Auth struct {
	Mode  AuthMode
	Token string
}

// AuthRecovery implements spec.md §4.L's "Auth" collaborator contract: on
// an HTTP 401, the transport calls HasNext/Next at most once per request
// to attempt a single token refresh before retrying the stream.
type AuthRecovery interface {
	// Auth returns the credential to use for the next request, if any.
	Auth() (Auth, bool)
	// HasNext reports whether a refresh attempt is available.
	HasNext() bool
	// Next performs one refresh attempt.
	Next(ctx context.Context) error
}

// NoAuthRecovery is an AuthRecovery that never retries; transports using it
// surface a 401 directly as a transport error.
type NoAuthRecovery struct {
	Cred Auth
}

func (n NoAuthRecovery) Auth() (Auth, bool) { return n.Cred, n.Cred.Token != "" }
func (NoAuthRecovery) HasNext() bool        { return false }
func (NoAuthRecovery) Next(context.Context) error { return ErrNoRefreshAvailable }
