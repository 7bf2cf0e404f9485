// 包 migrate：启动时对目标库做的最小结构准备
package migrate

import (
	"context"
	"database/sql"

	"geoenrich/internal/logger"
	"geoenrich/internal/store"

	"github.com/lib/pq"
)

// IndexName：几何列 GiST 索引的命名规则
func IndexName(t store.Table) string {
	geom := t.Geometry
	if geom == "" {
		geom = store.DefaultGeometryColumn
	}
	return "idx_" + t.Name + "_" + geom + "_gist"
}

// SpatialIndexStatement：生成建索引语句，标识符统一引用
func SpatialIndexStatement(t store.Table) string {
	geom := t.Geometry
	if geom == "" {
		geom = store.DefaultGeometryColumn
	}
	target := pq.QuoteIdentifier(t.Name)
	if t.Schema != "" {
		target = pq.QuoteIdentifier(t.Schema) + "." + target
	}
	return "CREATE INDEX IF NOT EXISTS " + pq.QuoteIdentifier(IndexName(t)) + " ON " + target + " USING GIST (" + pq.QuoteIdentifier(geom) + ")"
}

// 背景：最近邻排序依赖几何列索引，大表首次运行时可选自动创建
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；只建索引，不改表结构
func EnsureSpatialIndex(ctx context.Context, db *sql.DB, t store.Table) error {
	stmt := SpatialIndexStatement(t)
	logger.L().Debug("schema_exec", "stmt", stmt)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	logger.L().Info("schema_index_ready", "table", t.Name, "schema", t.Schema, "index", IndexName(t))
	return nil
}
