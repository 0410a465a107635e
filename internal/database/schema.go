package database

const recordSchema = `
-- Anime records scraped from detail pages or projected from search results
CREATE TABLE anime (
	site TEXT NOT NULL,
	name TEXT NOT NULL,
	link TEXT NOT NULL,
	link_type TEXT NOT NULL,
	total_episodes INTEGER NOT NULL,
	available_episodes INTEGER NOT NULL,
	image_path TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (site, name)
);

CREATE INDEX idx_anime_scraped_at ON anime(scraped_at);

-- Search API results, one set per (site, query)
CREATE TABLE search_entries (
	site TEXT NOT NULL,
	query TEXT NOT NULL,
	entry_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	episodes_count INTEGER NOT NULL,
	date INTEGER NOT NULL,
	type TEXT NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (site, query, entry_id)
);

CREATE INDEX idx_search_entries_entry_id ON search_entries(site, entry_id);
`

// recordMigrations contains incremental schema changes
// Each migration is applied in order based on the current user_version
// recordMigrations[0] is empty because version 0 uses the base schema
var recordMigrations = []string{
	"",
	`CREATE INDEX idx_search_entries_entry_id ON search_entries(site, entry_id);`,
}
