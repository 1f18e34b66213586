package app

import "errors"

// Kind classifies an app error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthenticated
	KindConflict
	KindValidation
	// KindIntegrity marks a record whose stored bytes have gone missing.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// Error is a classified, client-safe error. Two errors match under errors.Is
// when their codes are equal, so a sentinel can be re-issued with a more
// specific message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// KindOf returns the kind of err, or KindInternal if it is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	// Authentication. The three causes are distinguishable only after the
	// signature has been verified.
	ErrInvalidToken     = newError(KindUnauthenticated, "invalid_token", "invalid or expired token")
	ErrMalformedSubject = newError(KindUnauthenticated, "malformed_subject", "token subject is malformed")
	ErrUnknownIdentity  = newError(KindUnauthenticated, "unknown_identity", "token subject does not exist")

	// ErrInvalidCredentials is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = newError(KindUnauthenticated, "invalid_credentials", "incorrect email address or password")
	ErrNotActivated       = newError(KindForbidden, "not_activated", "account is awaiting administrator approval")
	ErrForbidden          = newError(KindForbidden, "forbidden", "forbidden")

	ErrDuplicateEmail   = newError(KindConflict, "duplicate_email", "email already registered")
	ErrUserNotFound     = newError(KindNotFound, "user_not_found", "user not found")
	ErrTeamNotFound     = newError(KindNotFound, "team_not_found", "team not found")
	ErrDocumentNotFound = newError(KindNotFound, "document_not_found", "document not found")
	ErrLogoNotFound     = newError(KindNotFound, "logo_not_found", "team has no logo")

	ErrAlreadyAssigned = newError(KindConflict, "already_assigned", "user already belongs to a team")
	ErrNotInTeam       = newError(KindValidation, "not_in_team", "you are not assigned to a team")
	ErrAlreadyHasTopic = newError(KindConflict, "already_has_topic", "team already drew a topic")
	ErrPoolExhausted   = newError(KindValidation, "pool_exhausted", "no topics left to draw")
	ErrNoPrimaryTopic  = newError(KindValidation, "no_primary_topic", "team must draw a topic first")
	ErrNoSubTheme      = newError(KindValidation, "no_sub_theme", "team has not proposed a sub-theme")
	ErrNameTaken       = newError(KindConflict, "name_taken", "team name already taken")
	ErrTeamsExist      = newError(KindConflict, "teams_exist", "teams already exist")

	ErrNoTeam           = newError(KindValidation, "no_team", "you must belong to a team to submit documents")
	ErrInvalidExtension = newError(KindValidation, "invalid_extension", "file type not allowed")
	ErrTooLarge         = newError(KindValidation, "too_large", "file too large")
	ErrInvalidDecision  = newError(KindValidation, "invalid_decision", "decision must be approved or rejected")
	ErrInvalidInput     = newError(KindValidation, "invalid_input", "invalid input")

	ErrBlobMissing = newError(KindIntegrity, "blob_missing", "document file is missing from storage")
)
