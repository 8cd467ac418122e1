// remitd wires the remittance orchestrator against the configured aggregator
// and anchor endpoints and runs a small concurrent demo of the quote and
// execution pipelines.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"remit/internal/aggregator"
	"remit/internal/anchor"
	"remit/internal/bridge"
	"remit/internal/corridor"
	"remit/internal/domain"
	"remit/internal/notification"
	"remit/internal/orchestrator"
	"remit/internal/recovery"
	"remit/pkg/cache"
	"remit/pkg/config"
	"remit/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("remitd")

	log.Info("Starting remittance orchestrator", map[string]interface{}{
		"aggregator_url": cfg.Aggregator.BaseURL,
		"anchor_url":     cfg.Anchor.BaseURL,
	})

	tokenCache, closeCache := buildTokenCache(cfg, log)
	defer closeCache()

	authClient := anchor.NewAuthClient(cfg.Anchor.BaseURL, cfg.Anchor.Timeout, cfg.Anchor.AuthTokenTTL, tokenCache, log)
	sep6 := anchor.NewSEP6Client(cfg.Anchor.BaseURL, cfg.Anchor.Timeout, authClient, log)
	sep24 := anchor.NewSEP24Client(cfg.Anchor.BaseURL, cfg.Anchor.Timeout, authClient, log)
	gateway := anchor.NewGateway(sep6, sep24, log)

	svc := orchestrator.NewService(
		corridor.NewDirectory(),
		corridor.NewRegistry(),
		aggregator.NewClient(cfg.Aggregator, log),
		bridge.NewService(cfg.Bridge.ConfirmTimeout, log),
		gateway,
		orchestrator.NewMemoryStore(),
		recovery.NewSchedulerWithPolicy(recovery.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			Multiplier:   cfg.Retry.Multiplier,
			MaxDelay:     cfg.Retry.MaxDelay,
		}, log),
		notification.NewService(log),
		orchestrator.NewMetrics(),
		cfg.Aggregator.Slippage,
		log,
	)

	if err := runDemo(context.Background(), svc, log); err != nil {
		log.Error("Demo run finished with errors", map[string]interface{}{
			"error": err.Error(),
		})
	}

	printMetrics(svc, log)
}

func buildTokenCache(cfg *config.Config, log logger.Logger) (anchor.TokenCache, func()) {
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err == nil {
			log.Info("Anchor token cache on Redis", map[string]interface{}{"addr": cfg.Redis.URL})
			return redisCache, func() { _ = redisCache.Close() }
		}
		log.Warn("Redis unavailable, using in-process token cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	mem := cache.NewMemoryCache()
	return mem, func() { _ = mem.Close() }
}

type demoTransfer struct {
	name      string
	quote     orchestrator.QuoteRequest
	sender    domain.Sender
	recipient domain.Recipient
}

func demoTransfers() []demoTransfer {
	usdcEthereum := "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	usdcPolygon := "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"

	return []demoTransfer{
		{
			name: "PH GCash",
			quote: orchestrator.QuoteRequest{
				SourceChain:      domain.ChainEthereum,
				SourceToken:      usdcEthereum,
				SourceAmount:     decimal.NewFromInt(100),
				DestCountry:      "PH",
				DestCurrency:     domain.PHP,
				DeliveryMethodID: "ph_gcash",
			},
			sender: domain.Sender{Address: "0x1111111111111111111111111111111111111111", Chain: domain.ChainEthereum},
			recipient: domain.Recipient{
				Name:     "Maria Santos",
				Country:  "PH",
				Currency: domain.PHP,
				Details: domain.MobileMoneyDetails{
					Provider:    "gcash",
					PhoneNumber: "09171234567",
					AccountName: "Maria Santos",
				},
			},
		},
		{
			name: "MX SPEI",
			quote: orchestrator.QuoteRequest{
				SourceChain:      domain.ChainPolygon,
				SourceToken:      usdcPolygon,
				SourceAmount:     decimal.NewFromInt(250),
				DestCountry:      "MX",
				DestCurrency:     domain.MXN,
				DeliveryMethodID: "mx_spei",
			},
			sender: domain.Sender{Address: "0x2222222222222222222222222222222222222222", Chain: domain.ChainPolygon},
			recipient: domain.Recipient{
				Name:     "Carlos Reyes",
				Country:  "MX",
				Currency: domain.MXN,
				Details: domain.BankDetails{
					BankCode:      "SPEI",
					AccountNumber: "032180000118359719",
					AccountName:   "Carlos Reyes",
				},
			},
		},
	}
}

// runDemo quotes and executes the demo transfers concurrently.
func runDemo(ctx context.Context, svc *orchestrator.Service, log logger.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, transfer := range demoTransfers() {
		transfer := transfer
		g.Go(func() error {
			quote, err := svc.GetQuote(gctx, transfer.quote)
			if err != nil {
				log.Error("Quote failed", map[string]interface{}{
					"transfer": transfer.name,
					"error":    err.Error(),
				})
				return err
			}

			log.Info("Quote composed", map[string]interface{}{
				"transfer":      transfer.name,
				"dest_amount":   quote.DestAmount.String(),
				"dest_currency": quote.DestCurrency,
				"fee_percent":   quote.TotalFeePercent.String(),
				"eta_minutes":   quote.EstimatedMinutes,
			})

			order, err := svc.ExecuteRemittance(gctx, *quote, transfer.sender, transfer.recipient)
			if err != nil {
				if derr, ok := err.(*recovery.DeliveryError); ok {
					log.Warn("Transfer failed", map[string]interface{}{
						"transfer":     transfer.name,
						"order_id":     order.ID,
						"user_message": derr.UserMessage,
					})
					return nil
				}
				return err
			}

			log.Info("Transfer completed", map[string]interface{}{
				"transfer":     transfer.name,
				"order_id":     order.ID,
				"payout_tx_id": order.PayoutTxID,
			})
			return nil
		})
	}

	done := g.Wait()

	// Give any scheduled retries a moment before reporting.
	time.Sleep(200 * time.Millisecond)
	return done
}

func printMetrics(svc *orchestrator.Service, log logger.Logger) {
	snapshot := svc.MetricsSnapshot()
	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Error("Failed to encode metrics", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}
