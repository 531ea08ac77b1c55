package uitemplates

import "html/template"

type DashboardParams struct {
	GeneratedAt string

	TotalMedications int
	TotalStock       string
	LowStock         int
	DailyDoses       int

	NotificationsEnabled bool

	Forecasts []*DashboardForecast
	Schedule  []*DashboardSlot
}

type DashboardForecast struct {
	Name          string
	Dosage        string
	Stock         string
	DaysRemaining string
	MonthlyCost   string
	Tier          string
	// Bootstrap contextual class for the tier badge.
	TierClass string
	Message   string
}

type DashboardSlot struct {
	Time   string
	Name   string
	Dosage string
	Status string
}

var dashboardText = `{{define "title"}}Dashboard{{end}}

{{define "content"}}
{{if not .NotificationsEnabled}}
<div class="alert alert-warning">Notifications are disabled.</div>
{{end}}

<div class="row mb-4">
  <div class="col"><h6>Medications</h6><p class="fs-3">{{.TotalMedications}}</p></div>
  <div class="col"><h6>Total Stock</h6><p class="fs-3">{{.TotalStock}}</p></div>
  <div class="col"><h6>Low Stock</h6><p class="fs-3">{{.LowStock}}</p></div>
  <div class="col"><h6>Daily Doses</h6><p class="fs-3">{{.DailyDoses}}</p></div>
</div>

<h2>Stock Forecast</h2>
<table class="table">
  <thead>
    <tr>
      <th>Medication</th>
      <th>Dosage</th>
      <th>Stock</th>
      <th>Days Left</th>
      <th>Monthly Cost</th>
      <th>Status</th>
    </tr>
  </thead>
  <tbody>
    {{range .Forecasts}}
    <tr>
      <td>{{.Name}}</td>
      <td>{{.Dosage}}</td>
      <td>{{.Stock}}</td>
      <td>{{.DaysRemaining}}</td>
      <td>{{.MonthlyCost}}</td>
      <td><span class="badge {{.TierClass}}">{{.Tier}}</span> {{.Message}}</td>
    </tr>
    {{else}}
    <tr><td colspan="6">No medications.</td></tr>
    {{end}}
  </tbody>
</table>

<h2>Today's Schedule</h2>
<table class="table">
  <thead>
    <tr>
      <th>Time</th>
      <th>Medication</th>
      <th>Dosage</th>
      <th>Status</th>
    </tr>
  </thead>
  <tbody>
    {{range .Schedule}}
    <tr>
      <td>{{.Time}}</td>
      <td>{{.Name}}</td>
      <td>{{.Dosage}}</td>
      <td>{{.Status}}</td>
    </tr>
    {{else}}
    <tr><td colspan="4">Nothing scheduled today.</td></tr>
    {{end}}
  </tbody>
</table>
{{end}}
`

var DashboardTemplate = template.Must(template.Must(template.New("base").Parse(baseText)).Parse(dashboardText))
