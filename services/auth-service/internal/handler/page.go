package handler

import (
	"bytes"
	"html/template"
	"net/http"
)

type page struct {
	Title   string
	Message string
}

var (
	pageVerified        = page{Title: "Email Verified!", Message: "Your email has been successfully verified. You can now close this tab and log in to the Echo app."}
	pageAlreadyVerified = page{Title: "Already Verified", Message: "Email is already verified. You can log in."}
	pageExpired         = page{Title: "Link Expired", Message: "Verification link has expired. Please sign up again to get a new link."}
	pageInvalid         = page{Title: "Invalid Link", Message: "Invalid verification link. Please sign up again."}
	pageUserNotFound    = page{Title: "Verification Failed", Message: "User not found. Verification failed."}
	pageServerError     = page{Title: "Something Went Wrong", Message: "Server error. Please try again later."}
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<div style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</div>
</body>
</html>
`))

func (h *AuthHTTPHandler) writePage(w http.ResponseWriter, status int, p page) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		h.logger.Error().Err(err).Msg("failed to render page")
		http.Error(w, p.Message, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
