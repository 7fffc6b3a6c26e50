package mail

import (
	"bytes"
	"html/template"
	"strings"
)

const layoutCSS = `
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background-color: #f4f4f7; margin: 0; padding: 0; }
    .container { max-width: 600px; margin: 40px auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 8px rgba(0,0,0,0.08); }
    .header { background-color: #1a1a2e; color: #ffffff; padding: 24px 32px; }
    .header h1 { margin: 0; font-size: 20px; font-weight: 600; }
    .body { padding: 32px; color: #333333; line-height: 1.6; }
    .meta p { margin: 4px 0; font-size: 14px; color: #555555; }
    table { width: 100%; border-collapse: collapse; font-size: 14px; }
    td { padding: 8px; border-bottom: 1px solid #eeeeee; vertical-align: top; word-break: break-word; }
    td.key { font-weight: 600; width: 35%; color: #1a1a2e; }
    .footer { padding: 20px 32px; text-align: center; font-size: 12px; color: #999999; border-top: 1px solid #eeeeee; }
`

var notificationTmpl = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>` + layoutCSS + `</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>New submission to {{.EndpointName}}</h1>
    </div>
    <div class="body">
      <div class="meta">
        <p><strong>Project:</strong> {{.ProjectName}}</p>
        <p><strong>Submission:</strong> {{.SubmissionID}}</p>
        <p><strong>Received:</strong> {{.SubmittedAt}}</p>
        {{if .IPAddress}}<p><strong>IP address:</strong> {{.IPAddress}}</p>{{end}}
      </div>
      <table>
        {{range .Fields}}<tr><td class="key">{{.Name}}</td><td>{{.Value}}</td></tr>
        {{end}}
      </table>
      {{if .Files}}
      <h3>Attachments</h3>
      <ul>
        {{range .Files}}<li><a href="{{.URL}}">{{.Name}}</a> ({{.MIMEType}}, {{.Size}})</li>
        {{end}}
      </ul>
      {{end}}
    </div>
    <div class="footer">
      This notification was sent by FormDrop for {{.ProjectName}}.
    </div>
  </div>
</body>
</html>`))

var autoresponseTmpl = template.Must(template.New("autoresponse").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>` + layoutCSS + `</style>
</head>
<body>
  <div class="container">
    <div class="body">{{.}}</div>
  </div>
</body>
</html>`))

func renderNotification(data notificationView) (string, error) {
	var buf bytes.Buffer
	if err := notificationTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderAutoresponse escapes text and keeps its line breaks.
func renderAutoresponse(text string) (string, error) {
	escaped := template.HTMLEscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	body := template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))

	var buf bytes.Buffer
	if err := autoresponseTmpl.Execute(&buf, body); err != nil {
		return "", err
	}
	return buf.String(), nil
}
