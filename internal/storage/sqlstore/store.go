package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Store implements push.IdentityStore on top of a sqlx database.
type Store struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
	now func() time.Time
}

var _ push.IdentityStore = (*Store)(nil)

// New loads the named queries and creates the identity table if needed.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	dot, err := loadQueries()
	if err != nil {
		return nil, err
	}

	s := &Store{dot: dot, db: db, now: time.Now}
	if _, err := s.exec(ctx, "create-identity-table"); err != nil {
		return nil, fmt.Errorf("failed to create identity table: %w", err)
	}
	return s, nil
}

func loadQueries() (*dotsql.DotSql, error) {
	var combinedSQL string

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}

		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		combinedSQL += string(content) + "\n"
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combinedSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return dot, nil
}

func (s *Store) Load(ctx context.Context, appID string) (*push.Identity, error) {
	query, err := s.raw("get-identity")
	if err != nil {
		return nil, err
	}

	var identity push.Identity
	if err := s.db.GetContext(ctx, &identity, s.db.Rebind(query), appID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, push.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return &identity, nil
}

func (s *Store) Save(ctx context.Context, identity push.Identity) error {
	_, err := s.exec(ctx, "upsert-identity",
		identity.AppID,
		identity.PlayerID,
		identity.DeviceToken,
		identity.InstallationID,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, appID string) error {
	if _, err := s.exec(ctx, "delete-identity", appID); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}

func (s *Store) raw(name string) (string, error) {
	query, err := s.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return query, nil
}

func (s *Store) exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := s.raw(name)
	if err != nil {
		return nil, err
	}
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}
