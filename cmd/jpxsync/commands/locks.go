package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// LocksCleanupAction は期限切れのジョブロックを削除するコマンドのアクション
// ロック取得は期限切れ行を自前で奪えるため定常運用では不要だが、
// 障害調査などでロックテーブルを綺麗にしたい場合に使う
func LocksCleanupAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	deleted, err := appCtx.Locks.CleanupExpired(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("期限切れロックを%d件削除しました\n", deleted)
	return nil
}
