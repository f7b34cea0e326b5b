package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/diagnostico-bot/internal/config"
	"github.com/wolfman30/diagnostico-bot/internal/payments"
	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	t.Cleanup(func() { client.Close() })

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	t.Cleanup(func() { client.Close() })

	if _, ok := BuildSessionStore(&appconfig.Config{SessionBackend: "memory"}, client, nil).(*session.MemoryStore); !ok {
		t.Fatalf("expected memory store for memory backend")
	}
	if _, ok := BuildSessionStore(&appconfig.Config{SessionBackend: "redis"}, nil, nil).(*session.MemoryStore); !ok {
		t.Fatalf("expected memory fallback without redis")
	}
	if _, ok := BuildSessionStore(&appconfig.Config{SessionBackend: "redis"}, client, nil).(*session.RedisStore); !ok {
		t.Fatalf("expected redis store")
	}
}

func TestBuildProcessedTracker(t *testing.T) {
	if _, ok := BuildProcessedTracker(nil).(*payments.MemoryProcessedTracker); !ok {
		t.Fatalf("expected memory tracker without redis")
	}
}

func TestBuildAnalyzerWithoutKey(t *testing.T) {
	analyzer, closeFn, err := BuildAnalyzer(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := analyzer.Analyze(context.Background(), nil, ""); !errors.Is(err, errAnalyzerDisabled) {
		t.Fatalf("expected disabled analyzer error, got %v", err)
	}
	if _, _, err := BuildAnalyzer(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLinkCreator(t *testing.T) {
	links, err := BuildLinkCreator(&appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := links.CreateLink(context.Background(), payments.LinkRequest{Amount: 5000}); !errors.Is(err, errPaymentsDisabled) {
		t.Fatalf("expected disabled links error, got %v", err)
	}

	links, err = BuildLinkCreator(&appconfig.Config{BoldAPIKey: "key", PublicBaseURL: "https://bot.example.com"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := links.(*payments.BoldClient); !ok {
		t.Fatalf("expected bold client, got %T", links)
	}
}

func TestBuildPrice(t *testing.T) {
	got := BuildPrice(&appconfig.Config{PaymentAmount: 7000, PaymentCurrency: "COP", PaymentDescription: "x"})
	if got != (payments.Price{Amount: 7000, Currency: "COP", Description: "x"}) {
		t.Fatalf("unexpected price %+v", got)
	}
}
