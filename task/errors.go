package task

import (
	"net/http"

	"github.com/repograde/backend/srvcerror"
)

const ErrCodeTaskNotFound = "task_not_found"

func ErrTaskNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeTaskNotFound,
		"Task not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeInvalidNonce = "invalid_nonce"

func ErrInvalidNonce() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidNonce,
		"Nonce does not match the task",
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeTaskWrongState = "task_wrong_state"

func ErrTaskWrongState() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeTaskWrongState,
		"Task is not accepting submissions",
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeUnknownRound = "unknown_round"

func ErrUnknownRound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeUnknownRound,
		"No such round is configured",
	).SetHttpStatusCode(http.StatusBadRequest)
}
