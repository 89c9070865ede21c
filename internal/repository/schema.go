package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS analytics_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    engagement_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    dataset_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    score REAL NOT NULL,
    summary TEXT NOT NULL,
    exceptions TEXT NOT NULL,
    screen_results TEXT,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_tenant ON analytics_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_runs_engagement ON analytics_runs(tenant_id, engagement_id);
CREATE INDEX IF NOT EXISTS idx_runs_hash ON analytics_runs(tenant_id, dataset_hash);
CREATE INDEX IF NOT EXISTS idx_runs_status ON analytics_runs(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON analytics_runs(tenant_id, created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaRuleConfigs,
	}
}
