package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

// ErrorPage renders a minimal standalone page for failures outside the app
func ErrorPage(status int, title, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%d %s</title></head>
<body>
<main class="error-page">
<h1>%s</h1>
<p class="error-message">%s</p>
<p><a href="/">Back to BioGames</a></p>
</main>
</body>
</html>
`, status, templ.EscapeString(http.StatusText(status)), templ.EscapeString(title), templ.EscapeString(message))
		return err
	})
}

func writePage(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = ErrorPage(status, title, message).Render(r.Context(), w)
}
