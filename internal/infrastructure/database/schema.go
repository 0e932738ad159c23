package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS ingredients (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		nom_normalise TEXT NOT NULL,
		categorie TEXT NOT NULL DEFAULT 'autre',
		allergenes JSONB NOT NULL DEFAULT '[]',
		saison JSONB NOT NULL DEFAULT '[]',
		prix_moyen DOUBLE PRECISION NOT NULL DEFAULT 0,
		unite_par_defaut TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ustensiles (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		nom_normalise TEXT NOT NULL,
		categorie TEXT NOT NULL DEFAULT 'autre',
		description TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS recettes (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		nom_normalise TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		description_normalisee TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL,
		temps_preparation INTEGER NOT NULL CHECK (temps_preparation BETWEEN 1 AND 480),
		temps_cuisson INTEGER NOT NULL CHECK (temps_cuisson BETWEEN 0 AND 480),
		portions INTEGER NOT NULL CHECK (portions BETWEEN 1 AND 20),
		difficulte INTEGER NOT NULL CHECK (difficulte BETWEEN 1 AND 5),
		regimes JSONB NOT NULL DEFAULT '[]',
		types_repas JSONB NOT NULL DEFAULT '[]',
		saison JSONB NOT NULL DEFAULT '[]',
		cout_estime DOUBLE PRECISION NOT NULL DEFAULT 0,
		calories INTEGER NOT NULL DEFAULT 0,
		owner_id TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// 正規化名稱只在公開項目之間唯一
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ingredients_nom_public ON ingredients (nom_normalise) WHERE is_public`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ustensiles_nom_public ON ustensiles (nom_normalise) WHERE is_public`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recettes_nom_public ON recettes (nom_normalise) WHERE is_public`,
	`CREATE TABLE IF NOT EXISTS recette_ingredients (
		recipe_id TEXT NOT NULL REFERENCES recettes(id) ON DELETE CASCADE,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
		quantite DOUBLE PRECISION NOT NULL CHECK (quantite > 0),
		unite TEXT NOT NULL,
		optionnel BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (recipe_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS recette_ustensiles (
		recipe_id TEXT NOT NULL REFERENCES recettes(id) ON DELETE CASCADE,
		utensil_id TEXT NOT NULL REFERENCES ustensiles(id),
		obligatoire BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (recipe_id, utensil_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_audit (
		id TEXT PRIMARY KEY,
		batch_name TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_id TEXT,
		metadata JSONB NOT NULL DEFAULT '{}',
		error_message TEXT,
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_audit_batch ON pipeline_audit (batch_name, created_at)`,
	`CREATE OR REPLACE FUNCTION log_pipeline_operation(
		p_id TEXT,
		p_batch_name TEXT,
		p_operation_type TEXT,
		p_action TEXT,
		p_entity_id TEXT,
		p_metadata JSONB,
		p_error_message TEXT,
		p_processing_time_ms BIGINT
	) RETURNS TEXT AS $$
	BEGIN
		INSERT INTO pipeline_audit (id, batch_name, operation_type, action, entity_id, metadata, error_message, processing_time_ms)
		VALUES (p_id, p_batch_name, p_operation_type, p_action, NULLIF(p_entity_id, ''),
		        COALESCE(p_metadata, '{}'::jsonb), NULLIF(p_error_message, ''), p_processing_time_ms);
		RETURN p_id;
	END;
	$$ LANGUAGE plpgsql`,
}

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS ingredients (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		nom_normalise TEXT NOT NULL,
		categorie TEXT NOT NULL DEFAULT 'autre',
		allergenes TEXT NOT NULL DEFAULT '[]',
		saison TEXT NOT NULL DEFAULT '[]',
		prix_moyen REAL NOT NULL DEFAULT 0,
		unite_par_defaut TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS ustensiles (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		nom_normalise TEXT NOT NULL,
		categorie TEXT NOT NULL DEFAULT 'autre',
		description TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS recettes (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		nom_normalise TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		description_normalisee TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL,
		temps_preparation INTEGER NOT NULL CHECK (temps_preparation BETWEEN 1 AND 480),
		temps_cuisson INTEGER NOT NULL CHECK (temps_cuisson BETWEEN 0 AND 480),
		portions INTEGER NOT NULL CHECK (portions BETWEEN 1 AND 20),
		difficulte INTEGER NOT NULL CHECK (difficulte BETWEEN 1 AND 5),
		regimes TEXT NOT NULL DEFAULT '[]',
		types_repas TEXT NOT NULL DEFAULT '[]',
		saison TEXT NOT NULL DEFAULT '[]',
		cout_estime REAL NOT NULL DEFAULT 0,
		calories INTEGER NOT NULL DEFAULT 0,
		owner_id TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// 正規化名稱只在公開項目之間唯一
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ingredients_nom_public ON ingredients (nom_normalise) WHERE is_public = 1`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ustensiles_nom_public ON ustensiles (nom_normalise) WHERE is_public = 1`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recettes_nom_public ON recettes (nom_normalise) WHERE is_public = 1`,
	`CREATE TABLE IF NOT EXISTS recette_ingredients (
		recipe_id TEXT NOT NULL REFERENCES recettes(id) ON DELETE CASCADE,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
		quantite REAL NOT NULL CHECK (quantite > 0),
		unite TEXT NOT NULL,
		optionnel BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (recipe_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS recette_ustensiles (
		recipe_id TEXT NOT NULL REFERENCES recettes(id) ON DELETE CASCADE,
		utensil_id TEXT NOT NULL REFERENCES ustensiles(id),
		obligatoire BOOLEAN NOT NULL DEFAULT 1,
		PRIMARY KEY (recipe_id, utensil_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_audit (
		id TEXT PRIMARY KEY,
		batch_name TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_audit_batch ON pipeline_audit (batch_name, created_at)`,
}
