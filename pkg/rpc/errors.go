package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dd0wney/cluso-filestore/pkg/auth"
	"github.com/dd0wney/cluso-filestore/pkg/gateway"
	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/replication"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
	"github.com/dd0wney/cluso-filestore/pkg/txn"
	"github.com/dd0wney/cluso-filestore/pkg/validation"
)

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

type wireError struct {
	code   string
	status int
	err    error
}

// wireErrors maps sentinels to stable codes. More specific errors come
// before the errors they wrap.
var wireErrors = []wireError{
	{"not_found", http.StatusNotFound, storage.ErrNotFound},
	{"invalid_name", http.StatusBadRequest, storage.ErrInvalidName},
	{"invalid_request", http.StatusBadRequest, validation.ErrInvalidRequest},
	{"local_io", http.StatusInternalServerError, storage.ErrLocalIO},
	{"lock_timeout", http.StatusServiceUnavailable, lock.ErrLockTimeout},
	{"no_leader", http.StatusServiceUnavailable, lock.ErrNoLeader},
	{"quorum_not_reached", http.StatusServiceUnavailable, replication.ErrQuorumNotReached},
	{"duplicate_account", http.StatusConflict, txn.ErrDuplicateAccount},
	{"replication_timeout", http.StatusServiceUnavailable, txn.ErrReplicationTimeout},
	{"transaction_aborted", http.StatusServiceUnavailable, txn.ErrTransactionAborted},
	{"invalid_credentials", http.StatusUnauthorized, auth.ErrInvalidCredentials},
	{"expired_token", http.StatusUnauthorized, auth.ErrExpiredToken},
	{"invalid_token", http.StatusUnauthorized, auth.ErrInvalidToken},
	{"no_backend", http.StatusServiceUnavailable, gateway.ErrNoBackendAvailable},
	{"retries_exhausted", http.StatusBadGateway, gateway.ErrRetriesExhausted},
}

const codeInternal = "internal"

// encodeError returns the wire code and HTTP status for err.
func encodeError(err error) (string, int) {
	for _, we := range wireErrors {
		if errors.Is(err, we.err) {
			return we.code, we.status
		}
	}
	return codeInternal, http.StatusInternalServerError
}

// decodeError rebuilds an error from a wire response so callers can match
// it with errors.Is.
func decodeError(status int, resp ErrorResponse) error {
	for _, we := range wireErrors {
		if we.code == resp.Code {
			return fmt.Errorf("%w: %s", we.err, resp.Message)
		}
	}
	if status >= http.StatusInternalServerError && resp.Code == "" {
		return fmt.Errorf("%w: HTTP %d", gateway.ErrBackendUnreachable, status)
	}
	return fmt.Errorf("rpc: %s (HTTP %d): %s", resp.Code, status, resp.Message)
}
