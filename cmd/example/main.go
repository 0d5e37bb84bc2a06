// Package main provides a basic example of using the Celox HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbracia/celox/pkg/celox"
)

func main() {
	logger := log.New(os.Stdout, "celox: ", log.LstdFlags)

	router := celox.NewRouter()
	router.Use(
		celox.Recovery(logger),
		celox.Logger(logger),
		celox.RequestID(),
		celox.Prometheus(),
		celox.Tracing(),
		celox.Compress(),
	)

	router.GET("/", func(ctx *celox.Context) error {
		return ctx.String(200, "Welcome to Celox")
	})
	router.GET("/hello/:name", func(ctx *celox.Context) error {
		return ctx.JSON(200, map[string]string{
			"message": "Hello, " + celox.Param(ctx, "name") + "!",
		})
	})
	router.GET("/search", func(ctx *celox.Context) error {
		return ctx.JSON(200, map[string]string{"q": ctx.Query("q")})
	})
	router.POST("/echo", func(ctx *celox.Context) error {
		contentType := ctx.Header("content-type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return ctx.Blob(200, contentType, ctx.Body())
	})

	api := router.Group("/api/v1")
	api.GET("/users/:id", func(ctx *celox.Context) error {
		return ctx.JSON(200, map[string]string{"id": celox.Param(ctx, "id")})
	})

	config := celox.DefaultConfig()
	config.Logger = logger
	if addr := os.Getenv("CELOX_ADDR"); addr != "" {
		config.Addr = addr
	}

	server := celox.New(config)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Printf("shutdown error: %v", err)
		}
	}()

	logger.Printf("listening on %s", config.Addr)
	if err := server.ListenAndServe(router); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
