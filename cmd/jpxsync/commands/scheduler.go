package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// SchedulerAction はcronスケジュールに従って全ジョブを定期実行するデーモンのアクション
// 同時実行の制御はジョブロックに任せるため、ここでは多重起動を気にしない
func SchedulerAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.RequireAPI(); err != nil {
		return err
	}

	c := cron.New()
	registered := 0
	for _, job := range domain.KnownJobs() {
		spec, ok := appCtx.Config.Jobs.Schedules[string(job)]
		if !ok || spec == "" {
			slog.Warn("no schedule configured for job, skipping", "job", job)
			continue
		}

		_, err := c.AddFunc(spec, func() {
			report, err := appCtx.Runner.RunJob(ctx, job, nil)
			if err != nil {
				slog.Error("scheduled job run failed", "job", job, "error", err)
				return
			}
			if report.SkippedLock {
				slog.Info("scheduled job skipped, lock held elsewhere", "job", job)
			}
		})
		if err != nil {
			return fmt.Errorf("ジョブ %s のスケジュール %q が不正です: %w", job, spec, err)
		}
		slog.Info("job scheduled", "job", job, "cron", spec)
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("スケジュールが1件も設定されていません")
	}

	c.Start()
	slog.Info("scheduler started", "jobs", registered)

	<-ctx.Done()

	// 実行中のジョブの完了を待ってから終了する
	slog.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}
