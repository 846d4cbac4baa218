package service

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"market_terminal/internal/helper"
	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

// Loader starts and cancels the backend streams on demand.
type Loader interface {
	StartLoad(preset string, years int)
	StartPipeline(preset string)
	CancelLoad()
	CancelPipeline()
}

// Conn exposes the reconnect counter of the stream client.
type Conn interface {
	Attempt() int
}

type Deps struct {
	State     *State
	Market    *store.Market
	Signals   *store.Signals
	Orders    *store.Orders
	Portfolio *store.Portfolio
	Load      *store.Load
	Pipeline  *store.Pipeline
	UI        *store.UI
	Loader    Loader
	Conn      Conn

	Universe []models.SymbolGroup
	// Preset resolves a preset name; nil accepts any name.
	Preset func(name string) ([]string, bool)
	Years  int
	Log    *zap.Logger
}

// API is the read-mostly HTTP view over the stores plus the manual retry
// endpoints for the backend streams.
type API struct {
	d Deps
}

func NewAPI(d Deps) *API {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &API{d: d}
}

func (a *API) Register(r gin.IRouter) {
	r.GET("/livez", a.livez)
	r.GET("/readyz", a.readyz)
	r.GET("/healthz", a.healthz)

	api := r.Group("/api")
	api.GET("/ticks", a.ticks)
	api.GET("/ticks/:symbol", a.tick)
	api.GET("/candles/:symbol", a.candle)
	api.GET("/signals", a.signals)
	api.GET("/orders", a.orders)
	api.GET("/portfolio", a.portfolio)
	api.GET("/sectors", a.sectors)

	api.GET("/load", a.loadState)
	api.POST("/load/:preset", a.startLoad)
	api.DELETE("/load", a.cancelLoad)

	api.GET("/pipeline", a.pipelineState)
	api.POST("/pipeline", a.startPipeline)
	api.DELETE("/pipeline", a.cancelPipeline)

	api.GET("/preferences", a.preferences)
	api.PUT("/preferences", a.putPreferences)
}

func (a *API) livez(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *API) readyz(c *gin.Context) {
	if !a.d.State.Ready() {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}

func (a *API) healthz(c *gin.Context) {
	var lastTick int64
	if t := a.d.State.LastTick(); !t.IsZero() {
		lastTick = t.UnixMilli()
	}
	attempt := 0
	if a.d.Conn != nil {
		attempt = a.d.Conn.Attempt()
	}
	m := a.d.Market.State()
	c.JSON(http.StatusOK, gin.H{
		"ready":           a.d.State.Ready(),
		"ws_status":       m.ConnectionStatus,
		"ws_attempt":      attempt,
		"seeded":          a.d.State.Seeded(),
		"uptime_sec":      int64(a.d.State.Uptime() / time.Second),
		"last_tick_ms":    lastTick,
		"symbols":         len(m.Ticks),
		"signals":         len(a.d.Signals.State().Signals),
		"orders":          len(a.d.Orders.State().Orders),
		"load_status":     a.d.Load.State().Status,
		"pipeline_status": a.d.Pipeline.State().Status,
	})
}

func (a *API) ticks(c *gin.Context) {
	m := a.d.Market.State()
	c.JSON(http.StatusOK, gin.H{
		"ticks":  m.Ticks,
		"latest": m.LatestTick,
		"status": m.ConnectionStatus,
	})
}

func (a *API) tick(c *gin.Context) {
	t, ok := a.d.Market.Tick(symbolParam(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tick":       t,
		"at_ceiling": t.AtCeiling(),
		"at_floor":   t.AtFloor(),
	})
}

func (a *API) candle(c *gin.Context) {
	cd, ok := a.d.Market.Candle(symbolParam(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no candle for symbol"})
		return
	}
	c.JSON(http.StatusOK, cd)
}

func (a *API) signals(c *gin.Context) {
	s := a.d.Signals.State()
	list := s.Signals
	if sym := strings.ToUpper(c.Query("symbol")); sym != "" {
		list = make([]models.AgentSignal, 0)
		for _, sig := range s.Signals {
			if sig.Symbol == sym {
				list = append(list, sig)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"signals": list, "latest": s.Latest})
}

func (a *API) orders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": a.d.Orders.State().Orders})
}

type positionView struct {
	models.Position
	PnL         float64 `json:"pnl"`
	PnLPct      float64 `json:"pnlPct"`
	MarketValue float64 `json:"marketValue"`
}

func (a *API) portfolio(c *gin.Context) {
	p := a.d.Portfolio.State()
	views := make([]positionView, 0, len(p.Positions))
	for _, pos := range p.Positions {
		views = append(views, positionView{
			Position:    pos,
			PnL:         pos.PnL(),
			PnLPct:      pos.PnLPct(),
			MarketValue: pos.MarketValue(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"positions":       views,
		"cash":            p.Cash,
		"nav":             p.NAV,
		"purchasingPower": p.PurchasingPower,
		"marketValue":     p.MarketValue(),
		"unrealizedPnl":   p.UnrealizedPnL(),
	})
}

func (a *API) sectors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"groups": helper.BuildGroups(a.d.Universe, a.d.Market.State().Ticks),
	})
}

func (a *API) loadState(c *gin.Context) {
	c.JSON(http.StatusOK, a.d.Load.State())
}

func (a *API) startLoad(c *gin.Context) {
	preset := c.Param("preset")
	if a.d.Preset != nil {
		if _, ok := a.d.Preset(preset); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown preset"})
			return
		}
	}
	years := a.d.Years
	if raw := c.Query("years"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "years must be a positive integer"})
			return
		}
		years = n
	}

	a.d.UI.SetPreset(c.Request.Context(), preset)
	a.d.Loader.StartLoad(preset, years)
	a.d.Log.Info("bulk load requested", zap.String("preset", preset), zap.Int("years", years))
	c.JSON(http.StatusAccepted, gin.H{"preset": preset, "years": years})
}

func (a *API) cancelLoad(c *gin.Context) {
	a.d.Loader.CancelLoad()
	c.Status(http.StatusNoContent)
}

func (a *API) pipelineState(c *gin.Context) {
	c.JSON(http.StatusOK, a.d.Pipeline.State())
}

type pipelineRequest struct {
	Preset string `json:"preset"`
}

func (a *API) startPipeline(c *gin.Context) {
	var req pipelineRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Preset == "" {
		req.Preset = a.d.UI.State().Preset
	}
	if req.Preset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preset is required"})
		return
	}

	a.d.Loader.StartPipeline(req.Preset)
	a.d.Log.Info("pipeline requested", zap.String("preset", req.Preset))
	c.JSON(http.StatusAccepted, gin.H{"preset": req.Preset})
}

func (a *API) cancelPipeline(c *gin.Context) {
	a.d.Loader.CancelPipeline()
	c.Status(http.StatusNoContent)
}

func (a *API) preferences(c *gin.Context) {
	c.JSON(http.StatusOK, a.d.UI.State())
}

type preferencesRequest struct {
	models.Preferences
	Timeframe  string `json:"timeframe"`
	ActiveView string `json:"active_view"`
}

func (a *API) putPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.YearRange.From > req.YearRange.To {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year_range.from is after year_range.to"})
		return
	}

	req.ActiveSymbol = strings.ToUpper(req.ActiveSymbol)
	a.d.UI.ApplyPreferences(c.Request.Context(), req.Preferences)
	if req.Timeframe != "" {
		a.d.UI.SetTimeframe(req.Timeframe)
	}
	if req.ActiveView != "" {
		a.d.UI.SetActiveView(req.ActiveView)
	}
	c.JSON(http.StatusOK, a.d.UI.State())
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(c.Param("symbol"))
}
