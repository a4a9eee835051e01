package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// RunsFailedAction は失敗したジョブ実行の一覧を表示するコマンドのアクション
func RunsFailedAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	jobName := domain.JobName(cmd.String("job"))
	limit := cmd.Int("limit")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	runs, err := appCtx.Ledger.FailedRuns(ctx, jobName, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("失敗した実行はありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Run ID", "Job", "Target Date", "Started At", "Error")
	for _, run := range runs {
		target := "-"
		if run.TargetDate != nil {
			target = run.TargetDate.Format("2006-01-02")
		}
		errMsg := ""
		if run.ErrorMessage != nil {
			errMsg = domain.Truncate(*run.ErrorMessage, 80)
		}
		table.Append(
			run.ID.String(),
			string(run.JobName),
			target,
			run.StartedAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	table.Render()
	return nil
}

// RunsRetryCleanupAction は失敗した実行記録を削除して再実行可能にするコマンドのアクション
// 台帳の冪等性ガードは成功・失敗を問わず同一対象日の再実行を弾くため、
// 失敗分をやり直すにはまず失敗記録を消す必要がある
func RunsRetryCleanupAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	jobName := domain.JobName(cmd.String("job"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	deleted, err := appCtx.Ledger.DeleteFailedRuns(ctx, jobName)
	if err != nil {
		return err
	}

	fmt.Printf("ジョブ %s の失敗記録を%d件削除しました。次回実行でキャッチアップされます\n", jobName, deleted)
	return nil
}
