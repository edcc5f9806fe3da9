package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/growthgate/internal/model"
)

// PostgresAppRepo はPostgreSQLを使用したアプリケーションリポジトリ。
type PostgresAppRepo struct {
	db *sql.DB
}

// NewPostgresAppRepo はPostgresAppRepoを生成する。
func NewPostgresAppRepo(db *sql.DB) *PostgresAppRepo {
	return &PostgresAppRepo{db: db}
}

// FindByID は指定IDのアプリケーションを取得する。見つからない場合はnilを返す。
func (r *PostgresAppRepo) FindByID(ctx context.Context, id string) (*model.App, error) {
	app := &model.App{}
	var origins pq.StringArray
	var mode string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, organization_id, isolation_mode, allowed_origins, webhook_url, created_at
		 FROM apps WHERE id = $1`,
		id,
	).Scan(&app.ID, &app.Name, &app.OrganizationID, &mode, &origins, &app.WebhookURL, &app.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find app by ID: %w", err)
	}

	app.IsolationMode = model.IsolationMode(mode)
	app.AllowedOrigins = []string(origins)
	return app, nil
}

// Create はアプリケーションを作成する。
func (r *PostgresAppRepo) Create(ctx context.Context, app *model.App) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO apps (id, name, organization_id, isolation_mode, allowed_origins, webhook_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		app.ID, app.Name, app.OrganizationID, string(app.IsolationMode),
		pq.Array(app.AllowedOrigins), app.WebhookURL, app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert app: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AppRepository = (*PostgresAppRepo)(nil)
