package utils

import (
	"html"

	"github.com/valyala/fasthttp"
)

func CreateErrorResponse(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("text/html; charset=utf-8")

	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := string(ctx.Request.Header.Peek("X-Request-ID")); requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}

	ctx.SetBodyString("<!DOCTYPE html><title>" + html.EscapeString(fasthttp.StatusMessage(statusCode)) +
		"</title><h1>" + html.EscapeString(message) + "</h1>")
}

func AcceptsEncoding(ctx *fasthttp.RequestCtx, encoding string) bool {
	return ctx.Request.Header.HasAcceptEncoding(encoding)
}
