package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harigane/jpxsync/internal/module/ingest/adapter/pg"
	"github.com/harigane/jpxsync/internal/module/ingest/application"
	"github.com/harigane/jpxsync/internal/module/marketdata"
	"github.com/harigane/jpxsync/internal/module/notify"
	"github.com/harigane/jpxsync/internal/platform/config"
	"github.com/harigane/jpxsync/internal/platform/database"
	"github.com/harigane/jpxsync/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config *config.Config
	Pool   *pgxpool.Pool

	Locks      *pg.LockRepository
	Ledger     *pg.LedgerRepository
	Heartbeats *pg.HeartbeatRepository
	Calendar   *pg.CalendarRepository

	Runner *application.Runner
	Health *application.HealthService

	// clientErr はAPIクライアント構築の失敗（APIキー未設定等）。
	// DBだけを触るコマンドは動かせるようここでは致命にせず、
	// ジョブを実行するコマンドがRequireAPIで検査する
	clientErr error
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
// APIキーが未設定でもDBだけを触るコマンドは動かしたいので、
// クライアント構築の失敗はハンドラー組み立てのみスキップする
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logger.New(logger.FromEnv())

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	locks := pg.NewLockRepository(pool)
	ledger := pg.NewLedgerRepository(pool)
	heartbeats := pg.NewHeartbeatRepository(pool)
	calendar := pg.NewCalendarRepository(pool)
	writer := pg.NewWriter(pool, nil)

	planner := application.NewPlanner(ledger, calendar, cfg.Jobs.CatchUpWindow)
	notifier := notify.New(cfg.Notify.WebhookURL)

	var handlers []application.Handler
	client, clientErr := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		APIKey:     cfg.API.APIKey,
		RateLimit:  cfg.API.RateLimit,
		RateWindow: cfg.API.RateWindow,
		MaxRetries: cfg.API.MaxRetries,
		Timeout:    cfg.API.Timeout,
	})
	if clientErr != nil {
		slog.Error("market data client unavailable, job execution disabled", "error", clientErr)
	} else {
		handlers = []application.Handler{
			application.NewDailyQuotesHandler(client, writer),
			application.NewEarningsCalendarHandler(client, writer),
			application.NewTradeFlowsHandler(client, writer),
			application.NewCalendarRefreshHandler(client, writer, cfg.Jobs.CalendarLookBack, cfg.Jobs.CalendarLookAhead),
		}
	}

	runner := application.NewRunner(locks, ledger, heartbeats, planner, notifier, cfg.Jobs.LockTTL, handlers...)
	health := application.NewHealthService(heartbeats, cfg.Jobs.HeartbeatStaleAfter)

	return &AppContext{
		Config:     cfg,
		Pool:       pool,
		Locks:      locks,
		Ledger:     ledger,
		Heartbeats: heartbeats,
		Calendar:   calendar,
		Runner:     runner,
		Health:     health,
		clientErr:  clientErr,
	}, nil
}

// RequireAPI はAPIクライアントが構築できていることを検査する
// ジョブを実行するコマンドは処理前にこれを呼び、設定不備を
// 「未知のジョブ」ではなく本来の原因として報告する
func (ac *AppContext) RequireAPI() error {
	if ac.clientErr != nil {
		return fmt.Errorf("マーケットデータAPIクライアントを構築できません: %w", ac.clientErr)
	}
	return nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Pool != nil {
		ac.Pool.Close()
	}
}
