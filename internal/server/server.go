package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/config"
	"github.com/shopscout/shopscout/internal/handler"
	"github.com/shopscout/shopscout/internal/healthcheck"
	"github.com/shopscout/shopscout/internal/httpclient"
	"github.com/shopscout/shopscout/internal/middleware"
	"github.com/shopscout/shopscout/internal/provider"
	"github.com/shopscout/shopscout/internal/ratelimit"
	"github.com/shopscout/shopscout/internal/repository"
	svc "github.com/shopscout/shopscout/internal/service"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	redis    *storage.RedisClient
	postgres *storage.Postgres

	cache   *cache.Cache
	limits  *ratelimit.Registry
	checker *healthcheck.Checker
	runner  *svc.Runner

	storeHandler   *handler.StoreHandler
	productHandler *handler.ProductHandler
	quoteHandler   *handler.QuoteHandler
	priceHandler   *handler.PriceHandler

	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		router:   router,
		config:   cfg,
		redis:    redis,
		postgres: postgres,
		cache:    cache.New(redis),
		limits:   buildLimits(cfg, redis),
		checker:  healthcheck.NewChecker(),
		runner:   svc.NewRunner(2, 128),
	}

	s.initializeServices()
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func buildLimits(cfg *config.Config, kv storage.KeyValue) *ratelimit.Registry {
	limits := ratelimit.NewRegistry()
	for op, bucket := range cfg.RateLimits {
		limits.Register(op, ratelimit.NewTokenBucket(kv, bucket.Capacity, bucket.RefillRate))
	}
	return limits
}

func (s *Server) newBreaker(cfg config.ProviderConfig) *circuitbreaker.Breaker {
	return circuitbreaker.New(s.redis, circuitbreaker.Config{
		TripAfter: cfg.BreakerTrips,
		OpenFor:   cfg.BreakerOpenFor(),
	})
}

func (s *Server) initializeServices() {
	cfg := s.config

	storeRepo := repository.NewStoreRepository(s.postgres)
	productRepo := repository.NewProductRepository(s.postgres)
	priceRepo := repository.NewPriceRepository(s.postgres)
	mappingRepo := repository.NewMappingRepository(s.postgres)

	// Store discovery
	geocoderBreaker := s.newBreaker(cfg.Geocoder)
	s.checker.Register(provider.NameGeocoder, geocoderBreaker)
	geocoder := provider.NewGeocoder(
		httpclient.New(httpclient.Config{Timeout: cfg.Geocoder.Timeout(), Attempts: cfg.Geocoder.Attempts}),
		geocoderBreaker, cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent,
	)

	poiBreaker := s.newBreaker(cfg.POISearch)
	s.checker.Register(provider.NamePOISearch, poiBreaker)
	poi := provider.NewPOISearch(
		httpclient.New(httpclient.Config{Timeout: cfg.POISearch.Timeout(), Attempts: cfg.POISearch.Attempts}),
		poiBreaker, cfg.POISearch.BaseURL,
	)

	discovery := svc.NewDiscovery(geocoder, poi, s.cache, s.limits, storeRepo)
	s.storeHandler = handler.NewStoreHandler(discovery)

	// Product catalog
	catalogBreaker := s.newBreaker(cfg.Catalog)
	s.checker.Register(provider.NameCatalog, catalogBreaker)
	catalog := provider.NewCatalog(
		httpclient.New(httpclient.Config{Timeout: cfg.Catalog.Timeout(), Attempts: cfg.Catalog.Attempts}),
		catalogBreaker, cfg.Catalog.BaseURL, cfg.Catalog.UserAgent,
	)

	catalogService := svc.NewCatalogService(catalog, s.cache, s.limits, productRepo, s.runner)
	s.productHandler = handler.NewProductHandler(catalogService)

	// Live price overlay, only when credentials are configured
	var overlay *svc.Overlay
	if cfg.Pricing.Enabled {
		pricingBreaker := s.newBreaker(cfg.Pricing.ProviderConfig)
		s.checker.Register(provider.NameLivePricing, pricingBreaker)

		pricingClient := httpclient.New(httpclient.Config{
			Timeout:  cfg.Pricing.Timeout(),
			Attempts: cfg.Pricing.Attempts,
		})
		tokens := provider.NewTokenSource(pricingClient, s.cache,
			cfg.Pricing.TokenURL, cfg.Pricing.ClientID, cfg.Pricing.ClientSecret, cfg.Pricing.Scope)
		pricing := provider.NewLivePricing(pricingClient, pricingBreaker, tokens, cfg.Pricing.BaseURL)

		overlay = svc.NewOverlay(pricing, mappingRepo, s.cache, s.limits)
	} else {
		logrus.Info("live pricing disabled, no credentials configured")
	}

	// Quoting and submission
	quotes := svc.NewQuoteService(priceRepo, storeRepo, overlay)
	s.quoteHandler = handler.NewQuoteHandler(quotes, svc.NewKVCartSource(s.redis))

	submit := svc.NewSubmitService(priceRepo, storeRepo, productRepo)
	s.priceHandler = handler.NewPriceHandler(submit)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Session())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	s.router.GET("/stores/search",
		middleware.RateLimit(s.limits, ratelimit.OpStoreSearch), s.storeHandler.Search)

	s.router.GET("/products",
		middleware.RateLimit(s.limits, ratelimit.OpProductSearch), s.productHandler.Search)
	s.router.GET("/products/:upc",
		middleware.RateLimit(s.limits, ratelimit.OpProductLookup), s.productHandler.Lookup)

	s.router.POST("/carts/quote",
		middleware.RateLimit(s.limits, ratelimit.OpQuote), s.quoteHandler.Quote)

	s.router.POST("/prices",
		middleware.RateLimit(s.limits, ratelimit.OpSubmitPrice), s.priceHandler.Submit)

	admin := s.router.Group("/admin")
	{
		admin.GET("/status", s.adminStatus)
		admin.POST("/cache/purge", s.purgeCache)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	redisHealthy := true
	if err := s.redis.Ping(ctx); err != nil {
		redisHealthy = false
		logrus.WithError(err).Warn("redis health check failed")
	}

	dbHealthy := true
	if err := s.postgres.Ping(ctx); err != nil {
		dbHealthy = false
		logrus.WithError(err).Warn("database health check failed")
	}

	status := s.checker.Overall(ctx)
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = healthcheck.StatusDegraded
	}
	if status != healthcheck.StatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "shopscout",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":     redisHealthy,
			"database":  dbHealthy,
			"providers": s.checker.Report(ctx),
		},
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "shopscout",
		"uptime":    time.Since(startTime).Seconds(),
		"providers": s.checker.Report(c.Request.Context()),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) purgeCache(c *gin.Context) {
	purged, err := s.cache.PurgeExpired(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error_code": "INTERNAL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logrus.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": s.config.Server.Environment,
	}).Info("starting shopscout")

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.runner.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
