package console

import "html/template"

var loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>folio admin · sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Offline}}<p class="banner">Server unreachable. Demo accounts only.</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="next" value="{{.Next}}">
  <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
  <label>Password <input type="password" name="password" required></label>
  <label><input type="checkbox" name="remember" value="1"> Remember me</label>
  <button type="submit" {{if .State.AuthLoading}}disabled{{end}}>Sign in</button>
</form>
<form method="post" action="/retry"><button type="submit">Retry connection</button></form>
</body></html>`))

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html><head><title>folio admin</title></head>
<body>
{{if .IsDemoMode}}<p class="banner">Demo mode: changes are not saved to the server.</p>{{end}}
<h1>Welcome{{with .User}}, {{if .Name}}{{.Name}}{{else}}{{.Email}}{{end}}{{end}}</h1>
{{with .User}}<p>Signed in as {{.Email}} ({{.Role}})</p>{{end}}
<p>Backend: {{.BackendStatus}}</p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body></html>`))
