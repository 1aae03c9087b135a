package notify

// Template constants
const rollbackFailedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Rollback Failed</title>
    <style>
        body { font-family: 'sans-serif'; color: #333333; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 20px auto; background-color: #fff4f4;
                     padding: 24px; border-radius: 8px; border: 1px solid #d9534f; }
        h1 { color: #d9534f; font-size: 22px; }
        table { width: 100%; border-collapse: collapse; margin-top: 16px; }
        td { padding: 6px 8px; border-bottom: 1px solid #eeeeee; vertical-align: top; }
        td:first-child { font-weight: bold; width: 160px; }
        .mono { font-family: monospace; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Rollback failed &mdash; manual intervention required</h1>
        <p>The rollback of <strong>{{.Service}}</strong> on <strong>{{.Environment}}</strong>
        reached a terminal FAILED state. It will not be retried automatically.</p>
        <table>
            <tr><td>Attempt</td><td class="mono">{{.ID}}</td></tr>
            {{if .RunID}}<tr><td>Triggering run</td><td class="mono">{{.RunID}}</td></tr>{{end}}
            <tr><td>From reference</td><td class="mono">{{.FromReference}}</td></tr>
            <tr><td>To reference</td><td class="mono">{{.ToReference}}</td></tr>
            <tr><td>Failure reason</td><td>{{.FailureReason}}</td></tr>
            {{if .LastHealthOutput}}<tr><td>Last health output</td><td class="mono">{{.LastHealthOutput}}</td></tr>{{end}}
            <tr><td>Started</td><td>{{.StartedAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
        </table>
        <p>Inspect the service directly before taking further action; its
        current reference may be neither the old nor the new one.</p>
    </div>
</body>
</html>`

const gateBlockedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Release Blocked</title>
    <style>
        body { font-family: 'sans-serif'; color: #333333; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 20px auto; background-color: #ffffff;
                     padding: 24px; border-radius: 8px; border: 1px solid #cccccc; }
        h1 { color: #d9534f; font-size: 22px; }
        ul { padding-left: 20px; }
        li { margin-bottom: 8px; }
        .mono { font-family: monospace; }
        .totals { color: #666666; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Verification gate: NO_GO on {{.Environment}}</h1>
        <p class="totals">Run <span class="mono">{{.RunID}}</span> &middot;
        {{.Totals.Passed}} passed, {{.Totals.Warned}} warned,
        {{.Totals.Failed}} failed, {{.Totals.Skipped}} skipped.</p>
        <p>The following checks failed:</p>
        <ul>
        {{range .Failed}}
            <li><span class="mono">{{.CheckID}}</span> ({{.Criticality}}): {{.Message}}
            {{if .Remediation}}<br/>Remediation: {{.Remediation}}{{end}}</li>
        {{end}}
        </ul>
        <p>The release is blocked until these are resolved and verification
        is re-run.</p>
    </div>
</body>
</html>`
