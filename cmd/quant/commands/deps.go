package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/evquant/internal/chips"
	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/external/cmoney"
	"github.com/wonny/evquant/internal/external/statementdog"
	"github.com/wonny/evquant/internal/pricing"
	"github.com/wonny/evquant/internal/s0_data"
	"github.com/wonny/evquant/internal/s0_data/collector"
	"github.com/wonny/evquant/internal/scheduler/jobs"
	"github.com/wonny/evquant/pkg/config"
	"github.com/wonny/evquant/pkg/database"
	"github.com/wonny/evquant/pkg/httputil"
	"github.com/wonny/evquant/pkg/logger"
	"github.com/wonny/evquant/pkg/redis"
)

// deps holds the wired infrastructure shared by the commands
type deps struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client
	repo  *s0_data.Repository
	cache contracts.QuarterlyPriceCache
}

// connect loads config, opens the stores and builds the quarter price cache
func connect(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	repo := s0_data.NewRepository(db.Pool)
	cache, err := repo.QuarterPriceCache(cfg, redisClient)
	if err != nil {
		_ = redisClient.Close()
		db.Close()
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"price_cache": cfg.PriceCache,
		"redis":       redisClient.Enabled(),
	}).Debug("Infrastructure ready")

	return &deps{
		cfg:   cfg,
		log:   log,
		db:    db,
		redis: redisClient,
		repo:  repo,
		cache: cache,
	}, nil
}

func (d *deps) Close() {
	_ = d.redis.Close()
	d.db.Close()
}

// newCollector wires the feeds to the repositories; chips only when a CMoney login is configured.
// With Redis enabled the request budget is shared across processes.
func (d *deps) newCollector() *collector.Collector {
	fundClient := d.feedClient("statementdog")
	priceClient := d.feedClient("cmoney")

	fundFeed := statementdog.NewClient(fundClient, d.cfg.Feeds.StatementDogBaseURL, d.log)
	priceFeed := cmoney.NewClient(priceClient, d.cfg.Feeds.CMoneyBaseURL, d.cfg.Location(), d.log)

	col := collector.NewCollector(fundFeed, priceFeed, d.repo.Fundamentals(), d.repo.Prices(), d.log)
	if d.chipsEnabled() {
		chipFeed := cmoney.NewChipClient(d.feedClient("cmoney_chips"), cmoney.ChipConfig{
			BaseURL:        d.cfg.Feeds.CMoneyBaseURL,
			ChipsURL:       d.cfg.Feeds.CMoneyChipsURL,
			Account:        d.cfg.Feeds.CMoneyAccount,
			HashedPassword: d.cfg.Feeds.CMoneyPassword,
		}, d.cfg.Location(), d.log)
		col.WithChips(chipFeed, d.repo.Chips())
	}
	return col
}

func (d *deps) chipsEnabled() bool {
	return d.cfg.Feeds.CMoneyAccount != "" && d.cfg.Feeds.CMoneyPassword != ""
}

// chipSince parses a YYYY-MM-DD flag in the price timezone; empty means six months ago
func (d *deps) chipSince(flag string) (time.Time, error) {
	return parseSince(flag, time.Now().In(d.cfg.Location()).AddDate(0, -chips.DefaultLookbackMonths, 0), d.cfg.Location())
}

func (d *deps) feedClient(key string) *httputil.Client {
	client := httputil.New(d.log)
	perSecond := d.cfg.Feeds.RatePerSecond
	if perSecond <= 0 {
		return client
	}

	if d.redis.Enabled() {
		limit := int(perSecond)
		if limit < 1 {
			limit = 1
		}
		return client.WithRateLimiter(redis.NewRateLimiter(d.redis, "evquant:ratelimit"), redis.RateLimitConfig{
			Key:    key,
			Limit:  limit,
			Window: time.Second,
		})
	}
	return client.WithLocalLimit(perSecond)
}

func (d *deps) collectorConfig() collector.Config {
	return collector.Config{Workers: d.cfg.Feeds.Workers}
}

// universe returns the given stocks, or the stocks of the latest settled quarter with stored reports
func (d *deps) universe(stocks []string) jobs.UniverseFunc {
	if len(stocks) > 0 {
		return jobs.StaticUniverse(stocks...)
	}

	fundamentals := d.repo.Fundamentals()
	return func(ctx context.Context) ([]string, error) {
		q := pricing.LatestSettled(time.Now())
		for i := 0; i < 8; i, q = i+1, q.Prev() {
			ids, err := fundamentals.ListStockIDs(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("list stocks of %s: %w", q, err)
			}
			if len(ids) > 0 {
				return ids, nil
			}
		}
		return nil, fmt.Errorf("no stored reports in the last two years: pass --stocks")
	}
}

func parseSince(flag string, fallback time.Time, loc *time.Location) (time.Time, error) {
	if flag == "" {
		return fallback, nil
	}
	return time.ParseInLocation("2006-01-02", flag, loc)
}

// parseStocks splits a comma separated stock id list, dropping blanks
func parseStocks(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
