package mysql

const insertRowsPrefix = "INSERT INTO review_rows\n  (review_id, brand, reviewed_at, raw)\nVALUES "

// COALESCE keeps an already known timestamp when a later pull lacks one.
const insertRowsOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  brand       = VALUES(brand),\n" +
	"  reviewed_at = COALESCE(VALUES(reviewed_at), review_rows.reviewed_at),\n" +
	"  raw         = VALUES(raw)\n"

const insertMissSQL = `
INSERT INTO ingest_misses (brand, http_status, reason)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE reason = VALUES(reason), seen_at = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Oldest first so repeated loads see rows in the same order.
const selectRowsSQL = `
SELECT raw
FROM review_rows
ORDER BY reviewed_at, review_id
`

const selectRowsSinceSQL = `
SELECT raw
FROM review_rows
WHERE reviewed_at >= ?
ORDER BY reviewed_at, review_id
`
