package evalsrvc

import (
	"net/http"

	"github.com/repograde/backend/srvcerror"
)

const ErrCodeEvalNotFound = "eval_not_found"

func ErrEvalNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeEvalNotFound,
		"Evaluation not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeStoreUnavailable = "store_unavailable"

func ErrStoreUnavailable() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeStoreUnavailable,
		"Evaluation store is unavailable, retry later",
	).SetHttpStatusCode(http.StatusServiceUnavailable)
}

const ErrCodeQueueUnavailable = "queue_unavailable"

func ErrQueueUnavailable() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeQueueUnavailable,
		"Evaluation queue is unavailable, retry later",
	).SetHttpStatusCode(http.StatusServiceUnavailable)
}
