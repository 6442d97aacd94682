package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marginguard"

// ============ Account ============

// MarginRatio is the account margin ratio computed on the last cycle.
var MarginRatio = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "margin_ratio_percent",
		Help:      "Maintenance margin as a percentage of margin balance",
	},
)

// MaxMarginRatio is the running session maximum of MarginRatio.
var MaxMarginRatio = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "max_margin_ratio_percent",
		Help:      "Highest margin ratio observed in the session",
	},
)

var MarginBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "margin_balance",
		Help:      "Account capital plus unrealized PnL",
	},
)

var MaintenanceMargin = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "maintenance_margin",
		Help:      "Total maintenance margin across routes",
	},
)

var TotalNotional = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "total_notional",
		Help:      "Total position notional across routes",
	},
)

var UnrealizedPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "unrealized_pnl",
		Help:      "Total unrealized PnL across routes",
	},
)

// Liquidations counts guard transitions to the liquidated state.
var Liquidations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "liquidations_total",
		Help:      "Number of liquidation events detected",
	},
	[]string{"mode"},
)

// ============ Routes ============

var PositionNotional = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "route",
		Name:      "position_notional",
		Help:      "Position notional per route",
	},
	[]string{"symbol"},
)

// LiquidationPriceRatio is lp_rate per route; NaN when the route is flat.
var LiquidationPriceRatio = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "route",
		Name:      "liquidation_price_ratio",
		Help:      "Liquidation price relative to mark price",
	},
	[]string{"symbol"},
)

var LeverageViolations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "route",
		Name:      "leverage_violations_total",
		Help:      "Configured leverage above the resolved tier cap",
	},
	[]string{"symbol", "stage"},
)

// CycleDuration - time spent in one route update, milliseconds
var CycleDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "route",
		Name:      "update_duration_ms",
		Help:      "Time to run one route risk update in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"symbol"},
)

// ============ Rules ============

// RuleLoads counts rule document loads by where they were served from.
var RuleLoads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "loads_total",
		Help:      "Rule document loads by source (memory, cache, download)",
	},
	[]string{"exchange", "source"},
)

var RuleCacheWriteFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "cache_write_failures_total",
		Help:      "Failed writes of downloaded rule documents to the cache",
	},
)

var RuleParseErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "parse_errors_total",
		Help:      "Malformed rule documents replaced by conservative defaults",
	},
	[]string{"exchange"},
)

// TierFallbacks counts lookups beyond the last known tier.
var TierFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "tier_fallbacks_total",
		Help:      "Tier lookups that fell back to the conservative ratio",
	},
	[]string{"exchange"},
)
