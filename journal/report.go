package journal

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/rustyeddy/marginguard/risk"
)

var sessionOrgFuncs = template.FuncMap{
	"metric": func(x risk.Metric, format string) string {
		if !x.Valid {
			return "n/a"
		}
		return fmt.Sprintf(format, x.Value)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "(n/a)"
		}
		return t.UTC().Format("2006-01-02 Mon 15:04")
	},
}

var sessionOrg = template.Must(template.New("session").Funcs(sessionOrgFuncs).Parse(SessionOrgTemplate))

// WriteOrg renders s as an Org mode entry.
func (s SessionRecord) WriteOrg(w io.Writer) error {
	return sessionOrg.Execute(w, s)
}

const SessionOrgTemplate = `* SESSION: {{.Exchange}} {{.Routes}}
:PROPERTIES:
:SESSION_ID:  {{.SessionID}}
:MODE:        {{.Mode}}
:START:       [{{stamp .Start}}]
:END:         [{{stamp .End}}]
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:LIQUIDATED:  {{.Liquidated}}
:END:

** Risk Summary
| Metric                  | Value | At |
|-------------------------+-------+----|
| Max. Margin Ratio       | {{metric .MaxMarginRatio "%.2f%%"}} | [{{stamp .MaxMarginRatioTS}}] |
| Minimum Margin          | {{metric .MinMargin "%.0f"}} | |
| Max. LP Ratio           | {{metric .MaxLPRatio "%.2f"}} | [{{stamp .MaxLPRatioTS}}] |
| Shared Max. Total Value | {{printf "%.2f" .MaxTotalValue}} | |
{{- if .Reason }}

** Notes
- {{.Reason}}
{{- end }}
`
