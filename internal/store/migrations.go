package store

const schema = `
CREATE TABLE IF NOT EXISTS listings (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    location    TEXT NOT NULL DEFAULT '',
    date_lost   DATE NOT NULL,
    status      TEXT NOT NULL DEFAULT 'lost' CHECK (status IN ('lost', 'found', 'returned')),
    owner_id    TEXT NOT NULL,
    image_url   TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);

CREATE TABLE IF NOT EXISTS matches (
    id         TEXT PRIMARY KEY,
    lost_id    TEXT NOT NULL REFERENCES listings(id),
    found_id   TEXT NOT NULL REFERENCES listings(id),
    score      INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(lost_id, found_id)
);

CREATE INDEX IF NOT EXISTS idx_matches_score ON matches(score);
CREATE INDEX IF NOT EXISTS idx_matches_found ON matches(found_id);

CREATE TABLE IF NOT EXISTS restitutions (
    id               TEXT PRIMARY KEY,
    listing_id       TEXT NOT NULL REFERENCES listings(id),
    user_id          TEXT NOT NULL,
    confirmed        BOOLEAN NOT NULL DEFAULT 1,
    date_restitution DATETIME NOT NULL,
    created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_restitutions_user ON restitutions(user_id);
`
