package database

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/unityscrape/internal/domain"
)

// RecordRepo implements domain.RecordStore interface
type RecordRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewRecordRepo creates a new record repository
func NewRecordRepo(log zerolog.Logger, db *DB) domain.RecordStore {
	return &RecordRepo{
		log: log.With().Str("repo", "records").Logger(),
		db:  db,
	}
}

// UpsertAnime inserts or replaces one anime of site
func (r *RecordRepo) UpsertAnime(ctx context.Context, site string, anime domain.Anime) error {
	now := time.Now().Format(time.RFC3339)

	queryBuilder := r.db.squirrel.
		Replace("anime").
		Columns("site", "name", "link", "link_type", "total_episodes", "available_episodes", "image_path", "scraped_at").
		Values(site, anime.Name, anime.Link, string(anime.LinkType), anime.TotalEpisodes, anime.AvailableEpisodes, anime.ImagePath, now)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("UpsertAnime")

	_, err = r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

// ListAnime returns every anime of site ordered by name
func (r *RecordRepo) ListAnime(ctx context.Context, site string) ([]domain.Anime, error) {
	queryBuilder := r.db.squirrel.
		Select("name", "link", "link_type", "total_episodes", "available_episodes", "image_path").
		From("anime").
		Where(sq.Eq{"site": site}).
		OrderBy("name")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("ListAnime")

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	anime := []domain.Anime{}
	for rows.Next() {
		var (
			a        domain.Anime
			linkType string
		)
		if err := rows.Scan(&a.Name, &a.Link, &linkType, &a.TotalEpisodes, &a.AvailableEpisodes, &a.ImagePath); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		a.LinkType = domain.LinkType(linkType)
		anime = append(anime, a)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return anime, nil
}

// UpsertSearchEntries replaces the stored results of query with entries
func (r *RecordRepo) UpsertSearchEntries(ctx context.Context, site, query string, entries []domain.SearchEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del, args, err := r.db.squirrel.
		Delete("search_entries").
		Where(sq.Eq{"site": site, "query": query}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building delete query")
	}

	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return errors.Wrap(err, "error executing delete query")
	}

	if len(entries) > 0 {
		now := time.Now().Format(time.RFC3339)

		insert := r.db.squirrel.
			Replace("search_entries").
			Columns("site", "query", "entry_id", "position", "title", "episodes_count", "date", "type", "image_url", "slug", "fetched_at")
		for i, e := range entries {
			insert = insert.Values(site, query, e.ID, i, e.Title, e.EpisodesCount, e.Date, string(e.Type), e.ImageURL, e.Slug, now)
		}

		ins, args, err := insert.ToSql()
		if err != nil {
			return errors.Wrap(err, "error building insert query")
		}

		r.log.Trace().Str("query", ins).Int("entries", len(entries)).Msg("UpsertSearchEntries")

		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return errors.Wrap(err, "error executing insert query")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}

	return nil
}

// ListSearchEntries returns the stored results of query in their original order
func (r *RecordRepo) ListSearchEntries(ctx context.Context, site, query string) ([]domain.SearchEntry, error) {
	queryBuilder := r.db.squirrel.
		Select("entry_id", "title", "episodes_count", "date", "type", "image_url", "slug").
		From("search_entries").
		Where(sq.Eq{"site": site, "query": query}).
		OrderBy("position")

	q, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", q).Interface("args", args).Msg("ListSearchEntries")

	rows, err := r.db.handler.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	entries := []domain.SearchEntry{}
	for rows.Next() {
		var (
			e         domain.SearchEntry
			entryType string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.EpisodesCount, &e.Date, &entryType, &e.ImageURL, &e.Slug); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		e.Type = domain.EntryType(entryType)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return entries, nil
}
