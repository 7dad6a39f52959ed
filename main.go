package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"crew-registry-system/handlers"
	"crew-registry-system/middleware"
	"crew-registry-system/models"
	"crew-registry-system/services"
	"crew-registry-system/workers"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// CORS for the gateway's web dashboard
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Discord-User-ID, X-Discord-Display-Name",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	codaToken := os.Getenv("CODA_API_TOKEN")
	if codaToken == "" {
		log.Fatal("CODA_API_TOKEN environment variable not set")
	}
	codaDocID := os.Getenv("CODA_DOC_ID")
	if codaDocID == "" {
		log.Fatal("CODA_DOC_ID environment variable not set")
	}
	codaTableID := os.Getenv("CODA_TABLE_ID")
	if codaTableID == "" {
		log.Fatal("CODA_TABLE_ID environment variable not set")
	}
	botToken := os.Getenv("DISCORD_BOT_TOKEN")
	if botToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN environment variable not set")
	}
	guildID := os.Getenv("DISCORD_GUILD_ID")
	if guildID == "" {
		log.Fatal("DISCORD_GUILD_ID environment variable not set")
	}
	adminChannelID := os.Getenv("ADMIN_CHANNEL_ID") // optional, disables admin reports when empty

	coda := services.NewCodaClient(os.Getenv("CODA_API_URL"), codaToken, codaDocID, codaTableID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Refuse to run against a reorganized doc — every column we read or
	// write must exist before the first session starts.
	if err := services.ValidateSchema(ctx, coda, models.RequiredColumns); err != nil {
		log.Fatal("failed to validate registry schema: ", err)
	}
	log.Println("✅ Registry schema validated")

	// REST-only Discord client: roles, nicknames and admin reports need no
	// gateway connection from this service.
	discord, err := discordgo.New("Bot " + botToken)
	if err != nil {
		log.Fatal("failed to create Discord client: ", err)
	}

	sessions := services.NewSessionStore()
	ids := services.NewIdentifierService(coda)
	roles := services.NewRolesService(discord, guildID, adminChannelID)
	onboarding := services.NewOnboardingService(sessions, ids, coda, roles)

	sweeper, err := services.StartSessionSweeper(sessions)
	if err != nil {
		log.Fatal("failed to start session sweeper: ", err)
	}
	defer func() { _ = sweeper.Shutdown() }()

	auditWorker := workers.NewPendingAuditWorker(coda, discord, adminChannelID)
	go auditWorker.Run(ctx)

	handlers.SetupOnboardingRoutes(app, onboarding)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Session sweeper running (every 1m, 15m idle timeout)")
	log.Println("✅ Pending-registration audit running (hourly)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
