package httpapi

import (
	"html/template"
	"net/http"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/oauth"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<main data-outcome="{{.Outcome}}">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</main>
</body>
</html>
`))

type callbackView struct {
	Outcome string
	Title   string
	Message string
}

func callbackContent(res auth.CallbackResult) (int, callbackView) {
	view := callbackView{Outcome: string(res.Outcome)}
	switch res.Outcome {
	case oauth.OutcomeSuccess:
		view.Title = "Signed in"
		view.Message = "You can close this window and return to the app."
		return http.StatusOK, view
	case oauth.OutcomeCanceled:
		view.Title = "Sign-in canceled"
		view.Message = "You declined the request. Return to the app to try again."
		return http.StatusOK, view
	case oauth.OutcomeInvalidRequest:
		view.Title = "Link expired"
		view.Message = "This sign-in link is invalid or has already been used. Start again from the app."
		return http.StatusBadRequest, view
	default:
		view.Title = "Sign-in failed"
		view.Message = "We could not complete sign-in with the provider. Please try again."
		return auth.HTTPStatus(res.Err), view
	}
}

func renderCallback(w http.ResponseWriter, res auth.CallbackResult) {
	status, view := callbackContent(res)
	if status == http.StatusOK && res.Outcome == oauth.OutcomeError {
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, view)
}
