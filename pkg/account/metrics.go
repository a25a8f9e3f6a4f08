package account

import "github.com/prometheus/client_golang/prometheus"

var mtxRefreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "driftdesk_account_refreshes_total",
		Help: "Account refreshes by outcome (ok|error|stale)",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(mtxRefreshes)
}
