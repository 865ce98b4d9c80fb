package app

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/raaihank/mailscraped/internal/config"
	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/logger"
)

type okResolver struct{}

func (okResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx." + name + ".", Pref: 10}}, nil
}

func TestNewServicesDefaults(t *testing.T) {
	cfg := config.GetDefaults()

	s, err := NewServices(cfg, logger.NewNop(), Options{Resolver: okResolver{}, OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	defer s.Close()

	if s.DomainCache != nil || s.Fetcher != nil {
		t.Error("optional services enabled by default")
	}
	if s.Validator.Blacklist().Len() != 3 {
		t.Errorf("blacklist size = %d, want 3", s.Validator.Blacklist().Len())
	}
	if _, err := s.CacheStats(context.Background()); err == nil {
		t.Error("CacheStats() should fail without a cache")
	}
}

func TestNewServicesWithCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.GetDefaults()
	cfg.Validation.Cache.Enabled = true
	cfg.Validation.Cache.RedisURL = "redis://" + mr.Addr()
	cfg.Fetch.Enabled = true

	s, err := NewServices(cfg, logger.NewNop(), Options{Resolver: okResolver{}, OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	defer s.Close()

	if s.DomainCache == nil || s.Fetcher == nil {
		t.Fatal("expected cache and fetcher")
	}

	pipeline := s.NewPipeline(PipelineConfig(cfg), logger.NewNop(), nil)
	result, err := pipeline.Run(context.Background(), etl.RunInput{
		Format: etl.FormatCSV,
		Body:   io.NopCloser(strings.NewReader("Alice,alice@foo.com\n")),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Errorf("Entries = %+v", result.Entries)
	}

	accepted, found, err := s.DomainCache.Get(context.Background(), "foo.com")
	if err != nil || !found || !accepted {
		t.Errorf("cache Get = %v %v %v, want accepted entry", accepted, found, err)
	}
}
