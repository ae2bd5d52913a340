package driver

// IndexQueries are run once before the first projection.
var IndexQueries = []string{
	"CREATE INDEX ON :Product(id);",
	"CREATE INDEX ON :Control(id);",
	"CREATE INDEX ON :Control(product_id);",
}

// Every write stamps sync_run so rows missing from the latest snapshot can
// be removed afterwards.
const (
	UpsertProductsQuery = `
		UNWIND $rows AS row
		MERGE (p:Product {id: row.id})
		SET p.name = row.name,
			p.sync_run = $run
		RETURN count(p) AS written
	`

	UpsertControlsQuery = `
		UNWIND $rows AS row
		MATCH (p:Product {id: row.product_id})
		MERGE (c:Control {id: row.id})
		SET c.product_id = row.product_id,
			c.key = row.key,
			c.text = row.text,
			c.section = row.section,
			c.ordinal = row.ordinal,
			c.sync_run = $run
		MERGE (p)-[h:HAS_CONTROL]->(c)
		SET h.sync_run = $run
		RETURN count(c) AS written
	`

	UpsertEdgesQuery = `
		UNWIND $rows AS row
		MATCH (s:Control {id: row.source})
		MATCH (t:Control {id: row.target})
		MERGE (s)-[r:MAPS_TO]->(t)
		SET r.confidence = row.confidence,
			r.updated_at = row.updated_at,
			r.sync_run = $run
		RETURN count(r) AS written
	`

	DeleteStaleEdgesQuery = `
		MATCH ()-[r:MAPS_TO]->()
		WHERE r.sync_run IS NULL OR r.sync_run <> $run
		DELETE r
		RETURN count(r) AS removed
	`

	DeleteStaleControlsQuery = `
		MATCH (c:Control)
		WHERE c.sync_run IS NULL OR c.sync_run <> $run
		DETACH DELETE c
		RETURN count(c) AS removed
	`

	DeleteStaleProductsQuery = `
		MATCH (p:Product)
		WHERE p.sync_run IS NULL OR p.sync_run <> $run
		DETACH DELETE p
		RETURN count(p) AS removed
	`
)
