package rules

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/metrics"
)

// Repository serves risk tables and trading rules. Documents are read from
// the cache, or obtained from the download collaborator when the cache has
// nothing, and kept in memory for the rest of the session.
type Repository struct {
	cache   *Cache
	dl      Downloader
	refresh bool
	log     *zap.Logger

	mu     sync.Mutex
	docs   map[string][]byte
	tables map[Request]*Table
	rules  map[Request]TradingRules
}

type Option func(*Repository)

// WithDownloader sets the collaborator used on cache misses.
func WithDownloader(d Downloader) Option {
	return func(r *Repository) { r.dl = d }
}

// WithRefresh makes the first load of every document go to the downloader
// even when a cached copy exists. Live sessions use it; the cache is only
// consulted when the download fails.
func WithRefresh(refresh bool) Option {
	return func(r *Repository) { r.refresh = refresh }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRepository(cacheDir string, opts ...Option) *Repository {
	r := &Repository{
		cache:  NewCache(cacheDir),
		log:    zap.NewNop(),
		docs:   make(map[string][]byte),
		tables: make(map[Request]*Table),
		rules:  make(map[Request]TradingRules),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the risk table for symbol. Repeated calls return the same
// table until Reload is called.
//
// A malformed document yields a conservative table (Degraded set) together
// with a *ParseError; callers may log the error and continue. Any other
// error is an *UnavailableError.
func (r *Repository) Table(ctx context.Context, kind exchange.Kind, symbol string) (*Table, error) {
	return r.table(ctx, kind, symbol, false)
}

// Reload discards the memoized table and document and loads them again,
// from the downloader when one is configured.
func (r *Repository) Reload(ctx context.Context, kind exchange.Kind, symbol string) (*Table, error) {
	return r.table(ctx, kind, symbol, true)
}

func (r *Repository) table(ctx context.Context, kind exchange.Kind, symbol string, force bool) (*Table, error) {
	req := Request{Exchange: kind, Document: RiskTable, Symbol: exchange.Normalize(symbol)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tables[req]; ok && !force {
		return t, nil
	}

	raw, err := r.load(ctx, req, force)
	if err != nil {
		return nil, err
	}

	t := &Table{Exchange: kind, Symbol: req.Symbol}
	switch kind {
	case exchange.Bybit:
		t.RiskLimits, err = parseBybitRiskLimits(raw, req.Symbol)
	case exchange.Ftx:
		var p FtxParams
		p, err = parseFtxParams(raw, req.Symbol)
		t.Ftx = &p
	default:
		t.Brackets, err = parseBinanceBrackets(raw, req.Symbol)
	}

	if err != nil {
		return r.degrade(req, t, err)
	}
	r.tables[req] = t
	return t, nil
}

func (r *Repository) degrade(req Request, t *Table, err error) (*Table, error) {
	if errors.Is(err, errSymbolMissing) {
		return nil, &UnavailableError{Exchange: req.Exchange, Symbol: req.Symbol, Document: req.Document, Err: err}
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		return nil, err
	}
	metrics.RuleParseErrors.WithLabelValues(req.Exchange.String()).Inc()
	r.log.Warn("malformed rule document, using conservative defaults",
		zap.String("exchange", req.Exchange.String()),
		zap.String("symbol", req.Symbol),
		zap.String("field", perr.Field),
		zap.Error(err))

	*t = Table{Exchange: req.Exchange, Symbol: req.Symbol, Degraded: true}
	if req.Exchange == exchange.Ftx {
		p := DefaultFtxParams
		p.Name = req.VenueSymbol()
		t.Ftx = &p
	}
	r.tables[req] = t
	return t, perr
}

// TradingRules returns the order constraints for symbol. On a malformed
// document it returns DefaultTradingRules together with a *ParseError.
func (r *Repository) TradingRules(ctx context.Context, kind exchange.Kind, symbol string) (TradingRules, error) {
	req := Request{Exchange: kind, Document: ExchangeInfo, Symbol: exchange.Normalize(symbol)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tr, ok := r.rules[req]; ok {
		return tr, nil
	}

	raw, err := r.load(ctx, req, false)
	if err != nil {
		return TradingRules{}, err
	}

	tr, err := parseTradingRules(raw, kind, req.Symbol)
	if err != nil {
		if errors.Is(err, errSymbolMissing) {
			return TradingRules{}, &UnavailableError{Exchange: kind, Symbol: req.Symbol, Document: ExchangeInfo, Err: err}
		}
		metrics.RuleParseErrors.WithLabelValues(kind.String()).Inc()
		r.log.Warn("malformed exchange info, using default trading rules",
			zap.String("exchange", kind.String()),
			zap.String("symbol", req.Symbol),
			zap.Error(err))
		r.rules[req] = DefaultTradingRules
		return DefaultTradingRules, err
	}

	r.log.Info("trading rules loaded",
		zap.String("exchange", kind.String()),
		zap.String("symbol", req.Symbol),
		zap.Float64("min_qty", tr.MinQty),
		zap.Float64("step_size", tr.StepSize),
		zap.Float64("min_notional", tr.MinNotional),
		zap.Int("price_precision", tr.PricePrecision),
		zap.Int("quantity_precision", tr.QuantityPrecision))
	r.rules[req] = tr
	return tr, nil
}

// load returns the raw document for req. Caller holds r.mu.
func (r *Repository) load(ctx context.Context, req Request, force bool) ([]byte, error) {
	name := req.CacheName()
	ex := req.Exchange.String()

	if raw, ok := r.docs[name]; ok && !force {
		metrics.RuleLoads.WithLabelValues(ex, "memory").Inc()
		return raw, nil
	}

	var cacheErr error
	if !r.refresh && !(force && r.dl != nil) {
		raw, err := r.cache.Read(name)
		if err == nil {
			metrics.RuleLoads.WithLabelValues(ex, "cache").Inc()
			r.log.Debug("rule cache hit", zap.String("file", name))
			r.docs[name] = raw
			return raw, nil
		}
		cacheErr = err
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("rule cache unreadable", zap.String("file", name), zap.Error(err))
		}
	}

	if r.dl == nil {
		if cacheErr == nil {
			cacheErr = errNoDownloader
		}
		return nil, &UnavailableError{Exchange: req.Exchange, Symbol: req.Symbol, Document: req.Document, Err: cacheErr}
	}

	raw, err := r.dl.Download(ctx, req)
	if err != nil {
		// A cached copy still beats no data at all.
		if cached, cerr := r.cache.Read(name); cerr == nil {
			r.log.Warn("rule download failed, using cached copy",
				zap.String("file", name), zap.Error(err))
			metrics.RuleLoads.WithLabelValues(ex, "cache").Inc()
			r.docs[name] = cached
			return cached, nil
		}
		return nil, &UnavailableError{Exchange: req.Exchange, Symbol: req.Symbol, Document: req.Document, Err: err}
	}
	metrics.RuleLoads.WithLabelValues(ex, "download").Inc()

	if err := r.cache.Write(name, raw); err != nil {
		metrics.RuleCacheWriteFailures.Inc()
		r.log.Warn("rule cache write failed, continuing with in-memory copy",
			zap.String("file", name), zap.Error(err))
	} else {
		r.log.Info("rule document cached", zap.String("file", r.cache.Path(name)))
	}

	r.docs[name] = raw
	return raw, nil
}
