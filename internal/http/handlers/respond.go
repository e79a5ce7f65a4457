package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Every error body carries a human readable "detail". Extra keys such as
// "fields" are merged in next to it.
func RespondError(ctx *gin.Context, status int, detail string, extra gin.H) {
	body := gin.H{"detail": detail}
	for k, v := range extra {
		if k != "detail" {
			body[k] = v
		}
	}
	ctx.AbortWithStatusJSON(status, body)
}

func RespondBadRequest(ctx *gin.Context, detail string, extra gin.H) {
	RespondError(ctx, http.StatusBadRequest, detail, extra)
}

func RespondNotFound(ctx *gin.Context, detail string) {
	RespondError(ctx, http.StatusNotFound, detail, nil)
}

// RespondInternal hides err from the caller and attaches it to the gin
// context, where the request logger picks it up.
func RespondInternal(ctx *gin.Context, err error, detail string) {
	if err != nil {
		_ = ctx.Error(err)
	}
	RespondError(ctx, http.StatusInternalServerError, detail, nil)
}
