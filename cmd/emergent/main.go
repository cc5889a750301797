// Command emergent runs a small end-to-end demonstration of the four
// engines over a toy checkout scenario: a cached product lookup, a
// dependency graph that prices an order under an injected discount
// protocol, a saga that charges payment and reserves shipping with
// rollback on failure, and an idempotency guard around the charge itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/prostomarkeloff/emergent/cache"
	"github.com/prostomarkeloff/emergent/graph"
	"github.com/prostomarkeloff/emergent/idempotency"
	"github.com/prostomarkeloff/emergent/result"
	"github.com/prostomarkeloff/emergent/saga"
)

func main() {
	var (
		sku      = flag.String("sku", "sku-42", "Product SKU to price and check out")
		qty      = flag.Int("qty", 2, "Quantity to purchase")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging to stderr")
		failShip = flag.Bool("fail-shipping", false, "Simulate a shipping reservation failure to exercise saga rollback")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	price, err := priceOrder(ctx, *sku, *qty)
	if err != nil {
		log.Fatalf("pricing failed: %v", err)
	}
	fmt.Printf("quote for %d x %s: $%.2f\n", *qty, *sku, price)

	outcome, err := checkout(ctx, logger, *sku, price, *failShip)
	if err != nil {
		fmt.Printf("checkout failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("checkout complete: order=%s charge=%s\n", outcome.orderID, outcome.chargeKey)
}

// priceOrder resolves a small dependency graph: a cached catalog lookup
// feeds a pricing node that applies whatever discount protocol is bound for
// this run.
func priceOrder(ctx context.Context, sku string, qty int) (float64, error) {
	catalog := newCatalogCache()

	unitPrice := graph.Define("catalog.unitPrice", nil, func(graph.Deps) result.LazyAction[float64] {
		return func(ctx context.Context) result.Result[float64] {
			v, err := catalog.Get(ctx, sku)
			if err != nil {
				return result.Err[float64](err)
			}
			return result.Ok(v.Value.Value)
		}
	})

	discounter := graph.Protocol[func(float64) float64]("pricing.discounter")

	total := graph.Define("pricing.total", []graph.Dependency{graph.Dep(unitPrice), discounter}, func(d graph.Deps) result.LazyAction[float64] {
		price := graph.Value(d, unitPrice)
		apply := graph.ProtocolValue(d, discounter)
		return result.ActionOf(apply(price * float64(qty)))
	})

	plan, err := graph.NewPlan(total)
	if err != nil {
		return 0, fmt.Errorf("build pricing plan: %w", err)
	}

	run := plan.NewRun(ctx, graph.DefaultConfig())
	run = graph.InjectProtocol(run, discounter, func(subtotal float64) float64 {
		if subtotal > 50 {
			return subtotal * 0.9
		}
		return subtotal
	})

	return graph.Execute(run, total)
}

type catalogEntry struct {
	Value float64 `json:"value"`
}

func newCatalogCache() *cache.Executor[string, catalogEntry] {
	local, err := cache.NewLocalTier[catalogEntry](256)
	if err != nil {
		log.Fatalf("build local tier: %v", err)
	}

	return cache.New(func(sku string) string { return sku }, func(ctx context.Context, sku string) (catalogEntry, error) {
		return catalogEntry{Value: 19.99}, nil
	}).Tier(local).Build()
}

type checkoutOutcome struct {
	orderID   string
	chargeKey string
}

// checkout runs a saga: charge payment (guarded by an idempotency
// executor so a retried checkout never double-charges), then reserve
// shipping. A shipping failure rolls back the charge via its compensator.
func checkout(ctx context.Context, logger *slog.Logger, sku string, amount float64, failShip bool) (checkoutOutcome, error) {
	logger.Info("starting checkout", "sku", sku, "amount", amount)
	store := idempotency.NewMemoryStore[string](idempotency.DefaultPolicy())
	chargeExec := idempotency.New(
		func(orderID string) string { return "charge:" + orderID },
		func(ctx context.Context, orderID string) result.LazyAction[string] {
			return func(ctx context.Context) result.Result[string] {
				return result.Ok("ch_" + orderID)
			}
		},
	).Store(store).Build()

	orderID := fmt.Sprintf("ord_%s_%s", sku, uuid.NewString())

	chargeStep := saga.NewStep(
		func(ctx context.Context) result.Result[string] {
			r, err := chargeExec.Run(ctx, orderID)
			if err != nil {
				return result.Err[string](err)
			}
			return result.Ok(r.Value)
		},
		func(ctx context.Context, chargeKey string) error {
			logger.Info("refunding charge", "charge", chargeKey)
			return nil
		},
	)

	chain := saga.NewChain(chargeStep).Then(func(ctx context.Context, chargeKey string) saga.Step[string] {
		return saga.NewStep(
			func(ctx context.Context) result.Result[string] {
				if failShip {
					return result.Err[string](fmt.Errorf("no carrier available for %s", sku))
				}
				return result.Ok("ship_" + orderID)
			},
			nil,
		)
	})

	res, err := saga.Run[string](ctx, saga.DefaultConfig(), chain)
	if err != nil {
		return checkoutOutcome{}, err
	}

	return checkoutOutcome{orderID: orderID, chargeKey: res.Applied[0].Value}, nil
}
