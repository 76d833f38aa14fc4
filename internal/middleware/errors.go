package middleware

import "errors"

var (
	errMissingToken  = errors.New("missing bearer token")
	errWrongAudience = errors.New("token audience mismatch")
)
