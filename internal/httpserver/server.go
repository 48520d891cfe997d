package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/tcche/orderbump/internal/cart"
	"github.com/tcche/orderbump/internal/catalog"
	"github.com/tcche/orderbump/internal/config"
	"github.com/tcche/orderbump/internal/database"
	"github.com/tcche/orderbump/internal/metrics"
	"github.com/tcche/orderbump/internal/middleware"
	"github.com/tcche/orderbump/internal/models"
	"github.com/tcche/orderbump/internal/offers"
	"github.com/tcche/orderbump/internal/session"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Analytics overrides the store derived from DB. Set when the
	// clickhouse driver is configured.
	Analytics storage.AnalyticsStore
	// Catalog overrides the WooCommerce client derived from config.
	Catalog catalog.Catalog
}

// Server wraps HTTP handlers and the order-bump services.
type Server struct {
	bumpService    *offers.BumpService
	matcher        *offers.Matcher
	analytics      *offers.AnalyticsService
	checkout       *offers.CheckoutService
	catalog        catalog.Catalog
	bumpRepo       storage.BumpRepo
	analyticsStore storage.AnalyticsStore
	logger         *zap.Logger
	config         *config.Config
	metrics        *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	cfg := deps.Config

	// Repositories, falling back to in-memory when PostgreSQL is absent.
	var repo storage.BumpRepo
	if deps.DB != nil {
		repo = storage.NewPostgresBumpRepo(deps.DB.Pool)
	} else {
		repo = storage.NewInMemoryBumpRepo()
	}

	eventStore := deps.Analytics
	if eventStore == nil {
		if deps.DB != nil {
			eventStore = storage.NewPostgresAnalyticsStore(deps.DB.Pool)
		} else {
			eventStore = storage.NewInMemoryAnalyticsStore()
		}
	}

	var carts cart.Store
	var nonces session.Nonces
	if deps.Redis != nil {
		carts = cart.NewRedisStore(deps.Redis.Client, cfg.Session.TTL)
		nonces = session.NewRedisNonces(deps.Redis.Client, cfg.Session.TTL)
	} else {
		carts = cart.NewInMemoryStore()
		nonces = session.NewInMemoryNonces(cfg.Session.TTL)
	}

	cat := deps.Catalog
	if cat == nil {
		if cfg.Catalog.BaseURL != "" {
			wc, err := catalog.NewWooCommerceClient(catalog.WooCommerceConfig{
				BaseURL:        cfg.Catalog.BaseURL,
				ConsumerKey:    cfg.Catalog.ConsumerKey,
				ConsumerSecret: cfg.Catalog.ConsumerSecret,
				Timeout:        cfg.Catalog.Timeout,
			}, deps.Logger)
			if err != nil {
				deps.Logger.Warn("failed to build catalog client, using empty catalog", zap.Error(err))
			} else {
				cat = wc
			}
		}
		if cat == nil {
			cat = catalog.NewStaticCatalog()
		}
	}

	var rdb redis.UniversalClient
	if deps.Redis != nil {
		rdb = deps.Redis.Client
	}
	analyticsSvc := offers.NewAnalyticsService(eventStore, repo, rdb, cfg.Analytics.DedupWindow, deps.Metrics, deps.Logger)

	s := &Server{
		bumpService:    offers.NewBumpService(repo),
		matcher:        offers.NewMatcher(repo, cat, analyticsSvc, deps.Metrics, deps.Logger),
		analytics:      analyticsSvc,
		checkout:       offers.NewCheckoutService(carts, cat, repo, analyticsSvc, deps.Metrics, deps.Logger),
		catalog:        cat,
		bumpRepo:       repo,
		analyticsStore: eventStore,
		logger:         deps.Logger,
		config:         cfg,
		metrics:        deps.Metrics,
	}

	sessions := middleware.NewSessionMiddleware(cfg.Session, nonces, deps.Logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// Bump management
	mux.HandleFunc("/api/v1/bumps", s.handleBumps)
	mux.HandleFunc("/api/v1/bumps/", s.handleBumpByID)

	// Analytics reports
	mux.HandleFunc("/api/v1/analytics/summary", s.handleAnalyticsSummary)
	mux.HandleFunc("/api/v1/analytics/by-bump", s.handleAnalyticsByBump)
	mux.HandleFunc("/api/v1/analytics/daily", s.handleAnalyticsDaily)

	// Catalog
	mux.HandleFunc("/api/v1/categories", s.handleCategories)

	// Schema setup
	mux.HandleFunc("/api/v1/setup", s.handleSetup)

	// Storefront checkout flow. Every route carries the session cookie;
	// cart mutations additionally require the session nonce.
	mux.Handle("/checkout/offers", sessions.Handler(http.HandlerFunc(s.handleOffers)))
	mux.Handle("/checkout/cart", sessions.Handler(http.HandlerFunc(s.handleCart)))
	mux.Handle("/checkout/cart/items", sessions.Handler(sessions.RequireNonce(http.HandlerFunc(s.handleCartItems))))
	mux.Handle("/checkout/cart/items/", sessions.Handler(sessions.RequireNonce(http.HandlerFunc(s.handleCartItemByKey))))
	mux.Handle("/checkout/bump/accept", sessions.Handler(sessions.RequireNonce(http.HandlerFunc(s.handleAcceptBump))))
	mux.Handle("/checkout/bump/remove", sessions.Handler(sessions.RequireNonce(http.HandlerFunc(s.handleRemoveBump))))
	mux.Handle("/checkout/finalize", sessions.Handler(sessions.RequireNonce(http.HandlerFunc(s.handleFinalize))))

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Bumps CRUD ----

func (s *Server) handleBumps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := models.BumpStatus(r.URL.Query().Get("status"))
		list, err := s.bumpService.List(r.Context(), status)
		if err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if list == nil {
			list = []*models.Bump{}
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var b models.Bump
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.bumpService.Create(r.Context(), &b); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&b)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleBumpByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/bumps/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, "invalid bump id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.bumpService.Get(r.Context(), id)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, b)

	case http.MethodPut:
		var b models.Bump
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		updated, err := s.bumpService.Update(r.Context(), id, &b)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, updated)

	case http.MethodDelete:
		if err := s.bumpService.Delete(r.Context(), id); err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, map[string]bool{"deleted": true})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Analytics ----

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	bumpID, _ := strconv.ParseInt(q.Get("bump_id"), 10, 64)
	from, to := s.analytics.ParseRange(q.Get("date_from"), q.Get("date_to"))

	stats, err := s.analytics.Summary(r.Context(), bumpID, from, to)
	if err != nil {
		s.logger.Error("failed to build summary", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, stats)
}

func (s *Server) handleAnalyticsByBump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	from, to := s.analytics.ParseRange(q.Get("date_from"), q.Get("date_to"))

	rows, err := s.analytics.ByBump(r.Context(), from, to)
	if err != nil {
		s.logger.Error("failed to build by-bump report", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*offers.BumpStats{}
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleAnalyticsDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	bumpID, _ := strconv.ParseInt(q.Get("bump_id"), 10, 64)
	from, to := s.analytics.ParseRange(q.Get("date_from"), q.Get("date_to"))

	days, err := s.analytics.Daily(r.Context(), bumpID, from, to)
	if err != nil {
		s.logger.Error("failed to build daily report", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, days)
}

// ---- Catalog ----

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cats, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		s.logger.Error("failed to list categories", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	s.jsonResponse(w, cats)
}

// ---- Setup ----

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.analyticsStore.Setup(r.Context()); err != nil {
		s.logger.Error("analytics setup failed", zap.Error(err))
		s.errorResponse(w, "setup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if pg, ok := s.bumpRepo.(*storage.PostgresBumpRepo); ok {
		if err := pg.Setup(r.Context()); err != nil {
			s.logger.Error("bump table setup failed", zap.Error(err))
			s.errorResponse(w, "setup failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	s.jsonResponse(w, map[string]string{"status": "ok"})
}

// ---- Checkout ----

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := session.FromContext(r.Context())
	placement := models.Placement(r.URL.Query().Get("placement"))
	if placement == "" {
		placement = models.PlacementAfterOrderReview
	}
	if !placement.Valid() {
		s.errorResponse(w, "invalid placement", http.StatusBadRequest)
		return
	}
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)

	c, err := s.checkout.Cart(r.Context(), sess.ID)
	if err != nil {
		s.logger.Error("failed to load cart", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	productIDs := c.ProductIDs()
	categoryIDs := offers.CartCategories(r.Context(), s.catalog, productIDs)

	selected, err := s.matcher.SelectOffers(r.Context(), placement, sess.ID, userID, productIDs, categoryIDs)
	if err != nil {
		s.logger.Error("failed to select offers", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if selected == nil {
		selected = []*offers.SelectedOffer{}
	}
	s.jsonResponse(w, selected)
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := session.FromContext(r.Context())
	c, err := s.checkout.Cart(r.Context(), sess.ID)
	if err != nil {
		s.logger.Error("failed to load cart", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ProductID <= 0 {
		s.errorResponse(w, "product_id is required", http.StatusBadRequest)
		return
	}

	sess := session.FromContext(r.Context())
	c, err := s.checkout.AddItem(r.Context(), sess.ID, req.ProductID, req.Quantity)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleCartItemByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/checkout/cart/items/")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	sess := session.FromContext(r.Context())
	c, err := s.checkout.RemoveItem(r.Context(), sess.ID, key)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleAcceptBump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		BumpID int64 `json:"bump_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.BumpID <= 0 {
		s.errorResponse(w, "bump_id is required", http.StatusBadRequest)
		return
	}

	sess := session.FromContext(r.Context())
	c, err := s.checkout.AcceptBump(r.Context(), sess.ID, req.BumpID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleRemoveBump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		BumpID int64 `json:"bump_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.BumpID <= 0 {
		s.errorResponse(w, "bump_id is required", http.StatusBadRequest)
		return
	}

	sess := session.FromContext(r.Context())
	c, err := s.checkout.RemoveBump(r.Context(), sess.ID, req.BumpID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	// Finalize takes an optional body.
	_ = json.NewDecoder(r.Body).Decode(&req)

	sess := session.FromContext(r.Context())
	order, err := s.checkout.Finalize(r.Context(), sess.ID, req.UserID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, order)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, offers.ErrNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, offers.ErrProductUnavailable):
		s.errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, offers.ErrEmptyCart):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}
