package middlewares

// gin context keys
const (
	CtxRequestID = "request_id"
	CtxUser      = "auth.user"
	CtxToken     = "auth.token"
)
