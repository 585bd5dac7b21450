package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/compassplan/compass/internal/adapters"
	"github.com/compassplan/compass/internal/attribution"
	"github.com/compassplan/compass/internal/cache"
	"github.com/compassplan/compass/internal/chart"
	"github.com/compassplan/compass/internal/database"
	"github.com/compassplan/compass/internal/errors"
	"github.com/compassplan/compass/internal/middleware"
	"github.com/compassplan/compass/internal/monitoring"
	"github.com/compassplan/compass/internal/privacy"
	"github.com/compassplan/compass/internal/ratelimit"
	"github.com/compassplan/compass/internal/resilience"
	"github.com/compassplan/compass/internal/security"
	"github.com/compassplan/compass/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func main() {
	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	jwtSecret := getEnvOrDefault("JWT_SECRET", "your-super-secret-jwt-key-change-in-production")
	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	suggestAPIKey := os.Getenv("SUGGEST_API_KEY")
	suggestBaseURL := os.Getenv("SUGGEST_BASE_URL")
	suggestModel := os.Getenv("SUGGEST_MODEL")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	port := getEnvOrDefault("PORT", "8080")

	// Initialize database and services
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	tenantService := database.NewTenantService(repo, jwtSecret)
	planningService := database.NewPlanningService(repo)
	privacyService := privacy.NewService(db)

	// Compression middleware
	compressionMiddleware := middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())

	// Stripe client
	var stripeClient *client.API
	if stripeSecretKey != "" {
		stripe.Key = stripeSecretKey
		stripeClient = &client.API{}
		stripeClient.Init(stripeSecretKey, nil)
	}

	// Suggestion adapter
	suggestAdapter := adapters.NewSuggestAdapter(suggestAPIKey, suggestBaseURL, suggestModel)
	defer suggestAdapter.Close()

	r := gin.New()

	// Monitoring system
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	r.Use(compressionMiddleware.Handler())
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(monitoring.SecurityMonitoringMiddleware(appLogger))

	// Error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// Security middleware
	securityConfig := security.DefaultSecurityConfig()
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)

	r.Use(security.SecurityHeadersMiddleware())
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)

	// CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = securityConfig.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	// Rate limiting with Redis and in-memory fallback
	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, 0)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	defer redisClient.Close()

	rateLimiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)
	r.Use(rateLimiter.IPRateLimitMiddleware())

	// Response cache for chart and mapping reads (5 minute TTL, invalidated
	// on every write)
	appCache := cache.NewCache(5 * time.Minute)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   "1.0.0",
			"metrics":   appMetrics.GetStats(),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		stats := appMetrics.GetStats()
		stats["rate_limits"] = appMetrics.GetRateLimitStats()
		stats["circuit_breakers"] = resilience.GetCircuitBreakerStats()
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, appCache.Stats())
	})

	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "database", "stats": db.GetPoolStats()})
	})

	r.GET("/pools/suggest", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "suggest", "stats": suggestAdapter.GetPoolStats()})
	})

	r.GET("/pools/compression", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "compression", "stats": compressionMiddleware.GetStats()})
	})

	r.GET("/pools/ratelimit", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "ratelimit", "stats": rateLimiter.GetStats()})
	})

	// Session bootstrap. Returns a token the client sends on every /api call.
	r.POST("/api/session", func(c *gin.Context) {
		var req types.SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			handleError(c, err)
			return
		}

		name := securityMiddleware.SanitizeInput(req.WorkspaceName)
		tenant, err := tenantService.ResolveTenant(req.TenantID, name)
		if err != nil {
			handleError(c, err)
			return
		}

		token, err := tenantService.GenerateSessionToken(tenant.ID)
		if err != nil {
			handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.SessionResponse{
			TenantID: tenant.ID,
			Token:    token,
			IsPaid:   tenant.IsPaid,
		})
	})

	// Everything under /api requires a valid session token.
	api := r.Group("/api")
	api.Use(tenantAuth(tenantService, repo))
	api.Use(appCache.Middleware(appMetrics, func(c *gin.Context) string {
		return c.GetString("tenant_id")
	}))

	registerPlanningRoutes(api, repo, planningService, securityMiddleware, appCache, appMetrics, appLogger)

	// Chart endpoints: stacked-bar views over the attribution engine
	api.GET("/charts/job-outcome", chartHandler(planningService, appLogger, "job-outcome", attribution.JobOutcomeBreakdowns))
	api.GET("/charts/job-output", chartHandler(planningService, appLogger, "job-output", attribution.JobOutputBreakdowns))
	api.GET("/charts/output-outcome", chartHandler(planningService, appLogger, "output-outcome", attribution.OutputOutcomeBreakdowns))

	// Job suggestions via LLM, budgeted for free tenants
	api.POST("/suggestions", rateLimiter.TenantSuggestionLimitMiddleware(), func(c *gin.Context) {
		if !suggestAdapter.IsConfigured() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "suggestions not configured"})
			return
		}

		tenantID := c.GetString("tenant_id")
		data, err := planningService.GetMappingData(tenantID)
		if err != nil {
			handleError(c, err)
			return
		}

		pc := adapters.PlanningContext{}
		for _, o := range data.Outcomes {
			pc.Outcomes = append(pc.Outcomes, o.Name)
		}
		for _, o := range data.Outputs {
			pc.Outputs = append(pc.Outputs, o.Name)
		}
		for _, j := range data.Jobs {
			pc.Jobs = append(pc.Jobs, j.Name)
		}

		start := time.Now()
		suggestions, err := suggestAdapter.SuggestJobs(c.Request.Context(), pc)
		duration := time.Since(start)

		appMetrics.IncrementSuggestionCalls()
		if err != nil {
			appMetrics.RecordExternalAPIRequest("suggest", false)
			appLogger.ExternalAPILogger("suggest", "POST", "chat/completions", 500, duration, false)
			handleError(c, errors.NewExternalAPIError("suggestion", err))
			return
		}

		appMetrics.RecordExternalAPIRequest("suggest", true)
		appLogger.ExternalAPILogger("suggest", "POST", "chat/completions", 200, duration, true)

		c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
	})

	// Permanent workspace erasure
	api.DELETE("/workspace", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")

		if err := privacyService.EraseTenant(tenantID); err != nil {
			handleError(c, err)
			return
		}

		appCache.InvalidateTenant(tenantID)
		c.JSON(http.StatusOK, gin.H{"erased": true})
	})

	// Stripe checkout session for the paid plan
	api.POST("/billing/create-session", func(c *gin.Context) {
		if stripeClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
			return
		}

		var req types.CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		if req.Plan != "pro" {
			handleError(c, errors.NewValidationError("unknown plan: "+req.Plan))
			return
		}

		tenantID := c.GetString("tenant_id")
		priceID := getEnvOrDefault("STRIPE_PRO_PRICE_ID", "price_pro_monthly")

		sessionParams := &stripe.CheckoutSessionParams{
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(priceID),
					Quantity: stripe.Int64(1),
				},
			},
			Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			SuccessURL:        stripe.String(getEnvOrDefault("BILLING_SUCCESS_URL", "https://compassplan.app/billing/success?session_id={CHECKOUT_SESSION_ID}")),
			CancelURL:         stripe.String(getEnvOrDefault("BILLING_CANCEL_URL", "https://compassplan.app/billing/cancelled")),
			ClientReferenceID: stripe.String(tenantID),
			Metadata: map[string]string{
				"tenant_id": tenantID,
				"plan":      req.Plan,
			},
		}

		session, err := stripeClient.CheckoutSessions.New(sessionParams)
		if err != nil {
			handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id": session.ID,
			"url":        session.URL,
		})
	})

	// Stripe webhook (unauthenticated, verified by signature)
	r.POST("/billing/webhook", func(c *gin.Context) {
		if stripeClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
			return
		}

		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), endpointSecret)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse webhook"})
			return
		}

		if event.Type == "checkout.session.completed" {
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse session"})
				return
			}

			tenantID := session.ClientReferenceID
			if tenantID == "" {
				slog.Error("Tenant ID is empty in webhook")
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant ID"})
				return
			}

			customerID := ""
			if session.Customer != nil {
				customerID = session.Customer.ID
			}

			if err := tenantService.UpgradeTenantToPaid(tenantID, customerID); err != nil {
				slog.Error("Failed to upgrade tenant", "error", err, "tenant_id", tenantID)
			}

			payment := database.NewPayment(tenantID, session.ID, string(session.Currency), "completed", session.AmountTotal)
			if err := tenantService.CreatePaymentRecord(payment); err != nil {
				slog.Error("Failed to record payment", "error", err, "tenant_id", tenantID)
			}

			appCache.InvalidateTenant(tenantID)
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	})

	// Swagger documentation routes
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Performance profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// tenantAuth validates the session token and loads the tenant into the
// request context.
// registerPlanningRoutes wires the planning-graph CRUD routes, the
// aggregate snapshot fetch, and the impact recalculation endpoint onto the
// authenticated API group.
func registerPlanningRoutes(api gin.IRoutes, repo *database.Repository, planningService *database.PlanningService, securityMiddleware *security.SecurityMiddleware, appCache *cache.Cache, appMetrics *monitoring.Metrics, appLogger *monitoring.Logger) {
	// Any write to the planning graph shifts every job's normalized share,
	// so mutating routes recompute the cached impact scalars before
	// responding. The write has already committed; a recalculation failure
	// is logged, not returned.
	recalcTenant := func(tenantID string) {
		if _, err := planningService.RecalculateImpacts(tenantID); err != nil {
			appLogger.Error("Impact recalculation failed", "tenant_id", tenantID, "error", err)
		} else {
			appMetrics.IncrementRecalculationRun()
		}
		appCache.InvalidateTenant(tenantID)
	}

	// Job CRUD
	api.GET("/jobs", func(c *gin.Context) {
		jobs, err := repo.ListJobs(c.GetString("tenant_id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	})

	api.POST("/jobs", func(c *gin.Context) {
		var req types.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		req.Name = securityMiddleware.SanitizeInput(req.Name)
		if err := securityMiddleware.ValidateName(req.Name); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		job := database.NewJob(tenantID, req.Name, req.Function)
		job.Done = req.Done
		if err := repo.CreateJob(job); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusCreated, job)
	})

	api.PUT("/jobs/:id", func(c *gin.Context) {
		var req types.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		req.Name = securityMiddleware.SanitizeInput(req.Name)
		if err := securityMiddleware.ValidateName(req.Name); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		job, err := repo.GetJob(tenantID, c.Param("id"))
		if err != nil {
			handleError(c, err)
			return
		}

		job.Name = req.Name
		job.Function = req.Function
		job.Done = req.Done
		if err := repo.UpdateJob(job); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, job)
	})

	api.DELETE("/jobs/:id", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if err := repo.SoftDeleteJob(tenantID, c.Param("id")); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	// Output CRUD
	api.GET("/outputs", func(c *gin.Context) {
		outputs, err := repo.ListOutputs(c.GetString("tenant_id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outputs": outputs})
	})

	api.POST("/outputs", func(c *gin.Context) {
		var req types.OutputRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		req.Name = securityMiddleware.SanitizeInput(req.Name)
		if err := securityMiddleware.ValidateName(req.Name); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		output := database.NewOutput(tenantID, req.Name, req.Target, req.Unit)
		if err := repo.CreateOutput(output); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusCreated, output)
	})

	api.PUT("/outputs/:id", func(c *gin.Context) {
		var req types.OutputRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		req.Name = securityMiddleware.SanitizeInput(req.Name)
		if err := securityMiddleware.ValidateName(req.Name); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		output := &database.Output{
			ID:       c.Param("id"),
			TenantID: tenantID,
			Name:     req.Name,
			Target:   req.Target,
			Unit:     req.Unit,
		}
		if err := repo.UpdateOutput(output); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, output)
	})

	api.DELETE("/outputs/:id", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if err := repo.DeleteOutput(tenantID, c.Param("id")); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	// Outcome CRUD
	api.GET("/outcomes", func(c *gin.Context) {
		outcomes, err := repo.ListOutcomes(c.GetString("tenant_id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
	})

	api.POST("/outcomes", func(c *gin.Context) {
		var req types.OutcomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		req.Name = securityMiddleware.SanitizeInput(req.Name)
		if err := securityMiddleware.ValidateName(req.Name); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		outcome := database.NewOutcome(tenantID, req.Name, req.TargetValue, req.CurrentValue, req.BeginningValue, req.Points)
		if err := repo.CreateOutcome(outcome); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusCreated, outcome)
	})

	api.PUT("/outcomes/:id", func(c *gin.Context) {
		var req types.OutcomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		req.Name = securityMiddleware.SanitizeInput(req.Name)
		if err := securityMiddleware.ValidateName(req.Name); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		outcome := &database.Outcome{
			ID:             c.Param("id"),
			TenantID:       tenantID,
			Name:           req.Name,
			TargetValue:    req.TargetValue,
			CurrentValue:   req.CurrentValue,
			BeginningValue: req.BeginningValue,
			Points:         req.Points,
		}
		if err := repo.UpdateOutcome(outcome); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, outcome)
	})

	api.DELETE("/outcomes/:id", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if err := repo.DeleteOutcome(tenantID, c.Param("id")); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	// Mapping edges
	api.POST("/job-output-mappings", func(c *gin.Context) {
		var req types.JobOutputMappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		tenantID := c.GetString("tenant_id")
		m := database.NewJobOutputMapping(tenantID, req.JobID, req.OutputID, req.ImpactValue, req.Target)
		if err := repo.CreateJobOutputMapping(m); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusCreated, m)
	})

	api.DELETE("/job-output-mappings/:id", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if err := repo.DeleteJobOutputMapping(tenantID, c.Param("id")); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	api.POST("/output-outcome-mappings", func(c *gin.Context) {
		var req types.OutputOutcomeMappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, err)
			return
		}

		if err := security.ValidatePercentage(req.Impact); err != nil {
			handleError(c, errors.NewValidationError(err.Error()))
			return
		}

		tenantID := c.GetString("tenant_id")
		m := database.NewOutputOutcomeMapping(tenantID, req.OutputID, req.OutcomeID, req.Impact)
		if err := repo.CreateOutputOutcomeMapping(m); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusCreated, m)
	})

	api.DELETE("/output-outcome-mappings/:id", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if err := repo.DeleteOutputOutcomeMapping(tenantID, c.Param("id")); err != nil {
			handleError(c, err)
			return
		}

		recalcTenant(tenantID)
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	// Full planning graph snapshot
	api.GET("/mapping-data", func(c *gin.Context) {
		data, err := planningService.GetMappingData(c.GetString("tenant_id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, data)
	})

	// Recompute and persist every job's impact scalar
	api.POST("/recalculate-impact", func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")

		n, err := planningService.RecalculateImpacts(tenantID)
		if err != nil {
			handleError(c, err)
			return
		}

		appMetrics.IncrementRecalculationRun()
		appCache.InvalidateTenant(tenantID)

		c.JSON(http.StatusOK, types.RecalculateResponse{
			JobsUpdated: n,
			TenantID:    tenantID,
		})
	})
}

func tenantAuth(tenantService *database.TenantService, repo *database.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
			return
		}

		tenantID, err := tenantService.ValidateSessionToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		tenant, err := repo.GetOrCreateTenant(tenantID, "Workspace")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load workspace"})
			return
		}

		c.Set("tenant_id", tenant.ID)
		c.Set("tenant_paid", tenant.IsPaid)
		c.Next()
	}
}

// chartHandler builds a stacked-bar chart response from one attribution view
func chartHandler(
	planningService *database.PlanningService,
	appLogger *monitoring.Logger,
	view string,
	compute func(attribution.MappingData, attribution.Options) []attribution.Breakdown,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")

		data, err := planningService.GetMappingData(tenantID)
		if err != nil {
			handleError(c, err)
			return
		}

		opts := attribution.Options{
			Sort:            attribution.SortHighToLow,
			KeyOutcomesByID: c.Query("key_by_id") == "true",
		}
		if c.Query("sort") == string(attribution.SortLowToHigh) {
			opts.Sort = attribution.SortLowToHigh
		}

		start := time.Now()
		breakdowns := compute(*data, opts)
		bars := chart.BuildStackedBars(breakdowns)
		appLogger.AttributionLogger(tenantID, view, len(breakdowns), time.Since(start), false)

		c.JSON(http.StatusOK, gin.H{
			"view": view,
			"bars": bars,
		})
	}
}

// handleError converts any error to an AppError response
func handleError(c *gin.Context, err error) {
	appErr := errors.ToAppError(err)
	errors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
