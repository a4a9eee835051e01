package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/harigane/jpxsync/internal/module/ingest/batch"
	"github.com/harigane/jpxsync/internal/platform/database"
)

// DefaultChunkSize はテーブル別設定のないテーブルのチャンクサイズ
const DefaultChunkSize = 1000

// DefaultSelectPageSize はSelectAllの既定ページサイズ
const DefaultSelectPageSize = 1000

// Writer は大きな行集合をチャンク分割してupsert/selectするバッチライターです
// チャンクごとに独立したステートメントを発行する（複数チャンクを1つの
// トランザクションで包まない）。途中で切れても冪等upsertなので再実行で安全
type Writer struct {
	db               database.DBTX
	chunkSizes       map[string]int
	defaultChunkSize int
}

// NewWriter は新しいWriterを作成します
// chunkSizesはテーブル名→チャンクサイズの上書き設定（nil可）
func NewWriter(db database.DBTX, chunkSizes map[string]int) *Writer {
	return &Writer{
		db:               db,
		chunkSizes:       chunkSizes,
		defaultChunkSize: DefaultChunkSize,
	}
}

// Upsert はrowsをチャンク分割し、conflictColsをキーにinsert-or-updateします
// 空入力はバックエンド呼び出しなしでゼロ結果を返す。
// デフォルトでは最初のチャンク失敗で「どのチャンクで失敗したか」を含む
// エラーを返して中断し、ContinueOnErrorの場合は成功分の件数とエラー一覧の両方を返す
func (w *Writer) Upsert(ctx context.Context, table string, cols []string, rows [][]any, conflictCols []string, opts *batch.UpsertOptions) (batch.UpsertResult, error) {
	var result batch.UpsertResult
	if len(rows) == 0 {
		return result, nil
	}
	if opts == nil {
		opts = &batch.UpsertOptions{}
	}

	chunkSize := w.defaultChunkSize
	if size, ok := w.chunkSizes[table]; ok && size > 0 {
		chunkSize = size
	}

	chunks := batch.Chunk(rows, chunkSize)
	for i, chunk := range chunks {
		tag, err := w.db.Exec(ctx, buildUpsertSQL(table, cols, conflictCols, len(chunk)), flatten(chunk)...)
		if err != nil {
			if !opts.ContinueOnError {
				return result, fmt.Errorf("batch upsert into %s failed at chunk %d/%d: %w", table, i+1, len(chunks), err)
			}
			result.Errors = append(result.Errors, batch.ChunkError{ChunkIndex: i, Err: err})
			continue
		}

		result.Affected += tag.RowsAffected()
		if opts.OnChunk != nil {
			opts.OnChunk(i, int(result.Affected), len(chunks))
		}
	}

	return result, nil
}

// buildUpsertSQL はINSERT ... ON CONFLICT ... DO UPDATE文を組み立てる
// table/cols/conflictColsはコード側の定数のみが渡る前提
func buildUpsertSQL(table string, cols, conflictCols []string, rowCount int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES ")

	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := range cols {
			if col > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", arg)
			arg++
		}
		sb.WriteString(")")
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(conflictCols, ", "))
	sb.WriteString(")")

	conflictSet := make(map[string]bool, len(conflictCols))
	for _, c := range conflictCols {
		conflictSet[c] = true
	}
	var updates []string
	for _, c := range cols {
		if !conflictSet[c] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	if len(updates) == 0 {
		sb.WriteString(" DO NOTHING")
	} else {
		sb.WriteString(" DO UPDATE SET ")
		sb.WriteString(strings.Join(updates, ", "))
	}

	return sb.String()
}

func flatten(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		args = append(args, row...)
	}
	return args
}

var allowedOps = map[string]bool{
	"=": true, "<": true, "<=": true, ">": true, ">=": true, "<>": true,
}

// SelectAll はページングしながら全行を読み集めます
// ページサイズ未満の行数が返った時点、またはMaxPagesに達した時点で終了する
func (w *Writer) SelectAll(ctx context.Context, opts batch.SelectOptions) ([][]any, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultSelectPageSize
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(opts.Columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(pgx.Identifier{opts.Table}.Sanitize())

	var args []any
	if opts.Filter != nil {
		if !allowedOps[opts.Filter.Op] {
			return nil, fmt.Errorf("unsupported filter operator: %s", opts.Filter.Op)
		}
		fmt.Fprintf(&sb, " WHERE %s %s $1", opts.Filter.Column, opts.Filter.Op)
		args = append(args, opts.Filter.Value)
	}
	if opts.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(opts.OrderBy)
	}
	fmt.Fprintf(&sb, " LIMIT %d OFFSET ", pageSize)
	baseQuery := sb.String()

	var result [][]any
	for page := 0; ; page++ {
		if opts.MaxPages > 0 && page >= opts.MaxPages {
			break
		}

		rows, err := w.db.Query(ctx, fmt.Sprintf("%s%d", baseQuery, page*pageSize), args...)
		if err != nil {
			return nil, fmt.Errorf("batch select from %s failed at page %d: %w", opts.Table, page, err)
		}

		count := 0
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("batch select from %s failed at page %d: %w", opts.Table, page, err)
			}
			result = append(result, values)
			count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("batch select from %s failed at page %d: %w", opts.Table, page, err)
		}

		if count < pageSize {
			break
		}
	}

	return result, nil
}
