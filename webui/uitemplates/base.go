package uitemplates

var baseText = `
<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="60">
    <title>{{block "title" .}}Title{{end}} - MedReminder</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0-alpha1/dist/css/bootstrap.min.css" rel="stylesheet" integrity="sha384-GLhlTQ8iRABdZLl6O3oVMWSktQOp6b7In1Zl3/Jr59b6EGGoI1aFkw7cmDA6j6gD" crossorigin="anonymous">
  </head>
  <body>
    <div class="container">
      <nav class="navbar bg-body-tertiary">
        <div class="container-fluid">
          <a class="navbar-brand" href="/">MedReminder</a>
          <a class="nav-link" href="/history">History</a>
          <a class="nav-link" href="/reminder-report.csv">Reminder Report (CSV)</a>
        </div>
      </nav>

      <main class="mt-3">
        {{block "content" .}}{{end}}
      </main>

      <footer class="pt-3 my-5 border-top text-muted">
        Generated {{.GeneratedAt}}
      </footer>
    </div>
  </body>
</html>
`
