package main

import (
	_ "amap/api/swagger" // swagger docs
	"amap/internal/database"
	"amap/internal/handler"
	"amap/internal/middleware"
	"amap/internal/rbac"
	"amap/internal/repository"
	"amap/internal/service"
	"amap/internal/websocket"
	"context"
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           AMAP TOGO API
// @version         1.0
// @description     Back office and RBAC authorization service for the AMAP TOGO cooperative.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Read the JWT secret once at startup; in release mode this panics if
	// it is missing rather than silently running with the dev fallback.
	jwtSecret := middleware.GetJWTSecret()

	// Set up WebSocket Hub for RBAC invalidation events
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// The permission store and session cache are shared between the route
	// guard and the access endpoint so both always decide identically.
	permStore := repository.NewPermissionStore(db)
	sessionCache := rbac.NewSessionCache(rbac.DefaultCacheTTL)
	txManager := repository.NewTransactionManager(db)

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	userService := service.NewUserService(userRepo, db, jwtSecret)
	roleService := service.NewRoleService(db, txManager, sessionCache, wsHub)
	resourceService := service.NewResourceService(db)
	accessService := service.NewAccessService(db, permStore, sessionCache)
	auditService := service.NewAuditService(db)
	catalogService := service.NewCatalogService(db)

	// Seed the resource catalog, system roles and the initial admin account
	ctx := context.Background()
	if err := roleService.SeedDefaults(ctx); err != nil {
		log.Fatalf("Failed to seed roles and resources: %v", err)
	}
	if err := userService.SeedAdminUser(ctx, os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		log.Printf("WARNING: Failed to seed admin user: %v", err)
	}

	// Initialize Handlers
	authHandler := handler.NewAuthHandler(userService, accessService)
	accessHandler := handler.NewAccessHandler(accessService)
	roleHandler := handler.NewRoleHandler(roleService, resourceService)
	userHandler := handler.NewUserHandler(userService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:3001", "http://127.0.0.1:3000"} // Storefront + back office
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Route guard: every request passes through it before any handler.
	guard := middleware.NewRouteGuard(middleware.GuardConfig{
		Store: permStore,
		Cache: sessionCache,
		Audit: auditService,
	})
	router.Use(guard.Handler())

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint for RBAC invalidation events
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, jwtSecret)
	})

	// Register API Routes
	authHandler.RegisterRoutes(router.Group(""))
	accessHandler.RegisterRoutes(router.Group(""))
	roleHandler.RegisterRoutes(router.Group(""))
	userHandler.RegisterRoutes(router.Group(""))
	catalogHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
