package uitemplates

import "html/template"

type HistoryParams struct {
	GeneratedAt string
	Entries     []*HistoryEntry
}

type HistoryEntry struct {
	Time       string
	Medication string
	Action     string
	Detail     string
}

var historyText = `{{define "title"}}History{{end}}

{{define "content"}}
<h1>History</h1>
<table class="table table-sm">
  <thead>
    <tr>
      <th>Time</th>
      <th>Medication</th>
      <th>Action</th>
      <th>Detail</th>
    </tr>
  </thead>
  <tbody>
    {{range .Entries}}
    <tr>
      <td>{{.Time}}</td>
      <td>{{.Medication}}</td>
      <td>{{.Action}}</td>
      <td>{{.Detail}}</td>
    </tr>
    {{else}}
    <tr><td colspan="4">No history yet.</td></tr>
    {{end}}
  </tbody>
</table>
{{end}}
`

var HistoryTemplate = template.Must(template.Must(template.New("base").Parse(baseText)).Parse(historyText))
