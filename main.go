package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/semitae/internal/adapter/ingress"
	"github.com/xiaot623/semitae/internal/adapter/llm"
	"github.com/xiaot623/semitae/internal/config"
	"github.com/xiaot623/semitae/internal/generator"
	"github.com/xiaot623/semitae/internal/policy"
	"github.com/xiaot623/semitae/internal/processor"
	"github.com/xiaot623/semitae/internal/repository"
	"github.com/xiaot623/semitae/internal/service"
	"github.com/xiaot623/semitae/internal/telemetry"
	handler "github.com/xiaot623/semitae/internal/transport/http"
	"github.com/xiaot623/semitae/internal/transport/rpc"
	"github.com/xiaot623/semitae/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting semitae...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("RPC Addr: %s", cfg.RPCAddr)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Generator: %s", cfg.GeneratorMode)

	ctx := context.Background()

	// Initialize tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: "semitae",
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize workflow
	gen := newGenerator(cfg)
	ingressClient := ingress.NewClient(cfg.IngressURL)
	orch := workflow.New(db, db, processor.New(policyEngine), gen, ingressClient, workflow.PolicyFromConfig(cfg))

	// Initialize service
	svc := service.New(db, orch)

	// Start stale run monitor
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go svc.RunStaleRunMonitor(monitorCtx, cfg.RunSweepInterval)

	// Create HTTP server
	httpServer := handler.NewServer(svc)

	// Create RPC server
	rpcServer, err := rpc.NewServer(svc)
	if err != nil {
		log.Fatalf("Failed to initialize RPC server: %v", err)
	}

	// Start HTTP server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Start RPC server
	if cfg.RPCAddr != "" {
		go func() {
			if err := rpcServer.Start(cfg.RPCAddr); err != nil {
				log.Fatalf("Failed to start RPC server: %v", err)
			}
		}()
	}

	log.Printf("HTTP API started on port %d", cfg.HTTPPort)
	if cfg.RPCAddr != "" {
		log.Printf("RPC API started on %s", cfg.RPCAddr)
	} else {
		log.Printf("RPC API disabled")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down semitae...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopMonitor()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown RPC server gracefully: %v", err)
	}
	orch.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Failed to flush traces: %v", err)
	}

	log.Println("semitae stopped")
}

func newGenerator(cfg *config.Config) generator.Generator {
	if cfg.GeneratorMode == config.GeneratorLLM {
		return generator.NewLLM(llm.NewLLMClient(cfg.LiteLLMURL, cfg.LiteLLMAPIKey, cfg.LLMTimeout), cfg.LLMModel)
	}
	return generator.NewTemplate()
}
