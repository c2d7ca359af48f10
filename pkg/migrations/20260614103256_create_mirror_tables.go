package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE sync_statuses (
				source_key TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				status TEXT NOT NULL,
				started_at TIMESTAMPTZ,
				last_synced_at TIMESTAMPTZ,
				synced_count INTEGER NOT NULL DEFAULT 0,
				total_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				owner_hint TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE mirrored_albums (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				source_key TEXT NOT NULL,
				section_id TEXT NOT NULL,
				external_id TEXT NOT NULL,
				title TEXT NOT NULL,
				title_sort TEXT NOT NULL,
				artist TEXT NOT NULL DEFAULT '',
				artist_sort TEXT NOT NULL DEFAULT '',
				year INTEGER,
				studio TEXT,
				genres TEXT NOT NULL DEFAULT '[]',
				payload TEXT NOT NULL DEFAULT ''
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_mirrored_albums_source_section_external ON mirrored_albums (source_key, section_id, external_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_mirrored_albums_source_section_title ON mirrored_albums (source_key, section_id, title_sort)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_mirrored_albums_source_section_artist ON mirrored_albums (source_key, section_id, artist_sort, title_sort)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_mirrored_albums_year ON mirrored_albums (source_key, section_id, year)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP INDEX IF EXISTS ix_mirrored_albums_year`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DROP INDEX IF EXISTS ix_mirrored_albums_source_section_artist`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DROP INDEX IF EXISTS ix_mirrored_albums_source_section_title`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DROP INDEX IF EXISTS ux_mirrored_albums_source_section_external`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DROP TABLE IF EXISTS mirrored_albums`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DROP TABLE IF EXISTS sync_statuses`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
