package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/harigane/jpxsync/internal/module/ingest/application"
	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// JobRunAction はジョブを1回起動するコマンドのアクション
func JobRunAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	jobName := domain.JobName(cmd.String("name"))
	dateStr := cmd.String("date")

	var explicitDate *time.Time
	if dateStr != "" {
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("日付の形式が不正です（YYYY-MM-DD）: %q", dateStr)
		}
		explicitDate = &d
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.RequireAPI(); err != nil {
		return err
	}

	report, err := appCtx.Runner.RunJob(ctx, jobName, explicitDate)
	if err != nil {
		return err
	}

	printReport(report)
	if report.Failed() {
		return fmt.Errorf("ジョブ %s は失敗しました", jobName)
	}
	return nil
}

func printReport(report *application.Report) {
	if report.SkippedLock {
		fmt.Printf("ジョブ %s はロックが取得できなかったためスキップされました\n", report.Job)
		return
	}
	if len(report.Dates) == 0 {
		fmt.Printf("ジョブ %s は処理対象がありません（最新の状態です）\n", report.Job)
		return
	}

	fmt.Printf("\n=== ジョブ実行結果: %s ===\n\n", report.Job)
	for _, d := range report.Dates {
		target := "-"
		if d.TargetDate != nil {
			target = d.TargetDate.Format("2006-01-02")
		}
		line := fmt.Sprintf("%s  %-8s  取得 %d件 / 書き込み %d件", target, d.Outcome, d.Fetched, d.Inserted)
		if d.Err != nil {
			line += fmt.Sprintf("  エラー: %v", d.Err)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n合計: 取得 %d件 / 書き込み %d件\n", report.Fetched, report.Inserted)
}
