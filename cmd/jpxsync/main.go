package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/harigane/jpxsync/cmd/jpxsync/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "jpxsync",
		Usage: "日本株マーケットデータの同期パイプライン",
		Commands: []*cli.Command{
			{
				Name:  "job",
				Usage: "ジョブ実行コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "ジョブを1回起動（未処理日はキャッチアップ）",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "name",
								Usage:    "ジョブ名 (daily_quotes / earnings_calendar / trade_flows / calendar_refresh)",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "date",
								Usage: "対象日を明示指定 (YYYY-MM-DD)。省略時はキャッチアップ計画に従う",
							},
						},
						Action: commands.JobRunAction,
					},
				},
			},
			{
				Name:  "scheduler",
				Usage: "cronスケジュールに従って全ジョブを定期実行するデーモン",
				Flags: []cli.Flag{
					envFlag,
				},
				Action: commands.SchedulerAction,
			},
			{
				Name:  "serve",
				Usage: "ジョブの手動起動とヘルス確認のためのHTTPサーバーを起動",
				Flags: []cli.Flag{
					envFlag,
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "health",
				Usage: "全ジョブのヘルス状態を表示",
				Flags: []cli.Flag{
					envFlag,
				},
				Action: commands.HealthAction,
			},
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "init",
						Usage: "スキーマを作成（冪等）",
						Flags: []cli.Flag{
							envFlag,
						},
						Action: commands.DBInitAction,
					},
				},
			},
			{
				Name:  "locks",
				Usage: "ジョブロック管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "cleanup",
						Usage: "期限切れのジョブロックを削除",
						Flags: []cli.Flag{
							envFlag,
						},
						Action: commands.LocksCleanupAction,
					},
				},
			},
			{
				Name:  "runs",
				Usage: "実行台帳の管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "failed",
						Usage: "失敗したジョブ実行の一覧を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "job",
								Usage:    "ジョブ名",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数の上限",
								Value: 20,
							},
						},
						Action: commands.RunsFailedAction,
					},
					{
						Name:  "retry-cleanup",
						Usage: "失敗した実行記録を削除して再実行可能にする",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "job",
								Usage:    "ジョブ名",
								Required: true,
							},
						},
						Action: commands.RunsRetryCleanupAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
