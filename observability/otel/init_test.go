package otel

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestResourceCarriesMarketIdentity(t *testing.T) {
	res, err := Resource(Config{ServiceName: "marketd", Environment: "dev", Market: "0xabc", Settlement: "escrow"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found[string(MarketAddressKey)] != "0xabc" || found[string(MarketSettlementKey)] != "escrow" {
		t.Fatalf("market attributes missing: %v", found)
	}
	if found["service.name"] != "marketd" {
		t.Fatalf("unexpected service name %q", found["service.name"])
	}
	if _, err := Resource(Config{}); err == nil {
		t.Fatalf("expected error without a service name")
	}
}

func TestSamplerRatio(t *testing.T) {
	if got := Sampler(0).Description(); got != sdktrace.ParentBased(sdktrace.AlwaysSample()).Description() {
		t.Fatalf("zero ratio should always sample, got %s", got)
	}
	if got := Sampler(0.25).Description(); got != sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description() {
		t.Fatalf("unexpected sampler %s", got)
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "marketd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = k1 ,broken, =x,tenant=market ")
	if len(got) != 2 || got["api-key"] != "k1" || got["tenant"] != "market" {
		t.Fatalf("unexpected headers %v", got)
	}
}
