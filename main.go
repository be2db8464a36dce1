package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/wizardin/chat-server/config"
	"github.com/wizardin/chat-server/handlers"
	"github.com/wizardin/chat-server/nats_service"
	"github.com/wizardin/chat-server/router"
	"github.com/wizardin/chat-server/session"
)

func main() {
	// --- Initialize NATS Service ---
	natsSvc, err := nats_service.NewNatsService(config.NatsURL)
	if err != nil {
		log.Fatalf("Failed to initialize NATS Service: %v", err)
	}
	defer natsSvc.Close()
	log.Println("NATS Service Initialized")

	// --- Initialize core state ---
	registry := session.NewRegistry()
	chatRouter := router.New(registry, natsSvc, config.SeedChannels)
	log.Printf("Channels seeded: %v", config.SeedChannels)

	// --- Initialize Fiber App ---
	app := fiber.New()
	app.Use(logger.New()) // Basic request logging

	// --- Setup WebSocket Route ---
	app.Use("/ws", func(c *fiber.Ctx) error {
		// Check if the request is a WebSocket upgrade request
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		handlers.HandleWebSocket(c, chatRouter, natsSvc)
	}))

	// --- Start Server ---
	go func() {
		log.Printf("Starting server on %s", config.ServerAddr)
		if err := app.Listen(config.ServerAddr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until signal received

	log.Println("Shutting down server...")

	// Shutdown Fiber app
	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down Fiber: %v", err)
	}

	// NATS connection is closed by defer in main

	log.Println("Server gracefully stopped")
}
