package pipeline

import (
	"encoding/json"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"go-customer-intel/internal/analytics/clv"
	"go-customer-intel/internal/analytics/forecast"
	"go-customer-intel/internal/analytics/insight"
	"go-customer-intel/internal/analytics/rfm"
	"go-customer-intel/internal/analytics/segment"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// ResultsFile is the JSON export of every stage result.
const ResultsFile = "analytics_results.json"

// ReportFiles lists what the report stage wrote.
type ReportFiles struct {
	HTMLReport     string   `json:"html_report"`
	JSONExport     string   `json:"json_export"`
	GeneratedFiles []string `json:"generated_files"`
}

type reportView struct {
	Title       string
	GeneratedAt string
	Cards       []insight.SummaryCard
	Segments    []rfm.SegmentSummary
	Clusters    []segment.Profile
	CLV         *clv.Summary
	Monthly     []insight.MonthlyPerformance
	Forecast    *forecast.ForecastSummary
	Failed      []model.StageError
}

var reportPrinter = message.NewPrinter(language.English)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"money": func(v float64) string { return reportPrinter.Sprintf("$%.2f", v) },
	"pct":   func(v float64) string { return reportPrinter.Sprintf("%.1f%%", v) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, Segoe UI, Roboto, sans-serif; background: #f5f7fa; color: #333; margin: 0; }
.container { max-width: 1100px; margin: 0 auto; padding: 24px; }
.header { background: #1e3a5f; color: #fff; padding: 24px; border-radius: 8px; }
.section { background: #fff; margin-top: 20px; padding: 20px; border-radius: 8px; }
.kpi-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 12px; }
.kpi-card { background: #f0f4f8; padding: 14px; border-radius: 6px; text-align: center; }
.kpi-card .value { font-size: 1.4em; font-weight: 600; color: #1e3a5f; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 8px; border-bottom: 1px solid #e2e8f0; text-align: left; }
.failed { color: #b91c1c; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h1>{{.Title}}</h1><div>Generated: {{.GeneratedAt}}</div></div>
{{with .Cards}}<div class="section"><h2>Executive Summary</h2><div class="kpi-grid">
{{range .}}<div class="kpi-card"><div class="value">{{.Value}}</div><div class="label">{{.Name}}</div></div>
{{end}}</div></div>{{end}}
{{with .Segments}}<div class="section"><h2>RFM Customer Analysis</h2><table>
<tr><th>Segment</th><th>Customers</th><th>Share</th><th>Revenue</th><th>Revenue share</th></tr>
{{range .}}<tr><td>{{.Segment}}</td><td>{{.CustomerCount}}</td><td>{{pct .CustomerPct}}</td><td>{{money .TotalMonetary}}</td><td>{{pct .RevenuePct}}</td></tr>
{{end}}</table></div>{{end}}
{{with .Clusters}}<div class="section"><h2>Customer Segmentation (K-Means)</h2><table>
<tr><th>Cluster</th><th>Label</th><th>Customers</th><th>Avg spend</th><th>Revenue</th><th>Avg recency</th></tr>
{{range .}}<tr><td>{{.ClusterID}}</td><td>{{.Label}}</td><td>{{.CustomerCount}}</td><td>{{money .AvgSpend}}</td><td>{{money .TotalRevenue}}</td><td>{{printf "%.1f" .AvgRecency}}</td></tr>
{{end}}</table></div>{{end}}
{{with .CLV}}<div class="section"><h2>Customer Lifetime Value</h2><div class="kpi-grid">
<div class="kpi-card"><div class="value">{{money .TotalPredictedCLV}}</div><div class="label">Total predicted CLV</div></div>
<div class="kpi-card"><div class="value">{{money .AvgCLV}}</div><div class="label">Average CLV</div></div>
<div class="kpi-card"><div class="value">{{money .TotalRiskAdjustedCLV}}</div><div class="label">Risk-adjusted CLV</div></div>
</div></div>{{end}}
{{with .Monthly}}<div class="section"><h2>Monthly Performance</h2><table>
<tr><th>Month</th><th>Revenue</th><th>Customers</th><th>Transactions</th></tr>
{{range .}}<tr><td>{{.Key}}</td><td>{{money .Revenue}}</td><td>{{.Customers}}</td><td>{{.TransactionCount}}</td></tr>
{{end}}</table></div>{{end}}
{{with .Forecast}}<div class="section"><h2>Sales Forecast</h2><div class="kpi-grid">
<div class="kpi-card"><div class="value">{{money .AverageForecast}}</div><div class="label">Avg Forecast</div></div>
<div class="kpi-card"><div class="value">{{money .MinForecast}}</div><div class="label">Min Forecast</div></div>
<div class="kpi-card"><div class="value">{{money .MaxForecast}}</div><div class="label">Max Forecast</div></div>
</div></div>{{end}}
{{with .Failed}}<div class="section failed"><h2>Failed Stages</h2><ul>
{{range .}}<li>{{.Stage}}: {{.Error}}</li>
{{end}}</ul></div>{{end}}
</div>
</body>
</html>
`))

// WriteReports renders the HTML summary and the JSON export of results into
// dir.
func WriteReports(dir string, results map[string]interface{}, failed []model.StageError) (ReportFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to create report directory")
	}

	now := time.Now()
	htmlPath := filepath.Join(dir, utils.TimestampedFilename("report", "html", now))
	f, err := os.Create(htmlPath)
	if err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to create HTML report")
	}
	view := buildView(results, failed)
	view.GeneratedAt = now.Format("January 02, 2006 at 15:04:05")
	if err := reportTemplate.Execute(f, view); err != nil {
		f.Close()
		return ReportFiles{}, errors.Wrap(err, "failed to render HTML report")
	}
	if err := f.Close(); err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to write HTML report")
	}

	jsonPath := filepath.Join(dir, ResultsFile)
	body, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to encode results")
	}
	if err := os.WriteFile(jsonPath, body, 0644); err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to write results")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ReportFiles{}, errors.Wrap(err, "failed to list reports")
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	return ReportFiles{HTMLReport: htmlPath, JSONExport: jsonPath, GeneratedFiles: files}, nil
}

func buildView(results map[string]interface{}, failed []model.StageError) reportView {
	view := reportView{Title: "Retail Analytics Report", Failed: failed}
	if r, ok := results[model.ResultKPI].(*insight.KPIReport); ok {
		view.Cards = r.Summary
	}
	if r, ok := results[model.ResultRFM].(rfm.Report); ok {
		view.Segments = r.SegmentSummary
	}
	if r, ok := results[model.ResultSegment].(segment.Report); ok {
		view.Clusters = r.Profiles
	}
	if r, ok := results[model.ResultCLV].(clv.Report); ok {
		view.CLV = &r.Summary
	}
	if r, ok := results[model.ResultPerformance].(*insight.PerformanceReport); ok {
		view.Monthly = r.Monthly
		if len(view.Monthly) > 12 {
			view.Monthly = view.Monthly[len(view.Monthly)-12:]
		}
	}
	if r, ok := results[model.ResultForecast].(forecast.Report); ok {
		view.Forecast = r.Comparison.Summary
	}
	return view
}
