package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- IMAGE TABLE (metadata store)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS image SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS object_path ON image TYPE string;
    DEFINE FIELD IF NOT EXISTS object_size ON image TYPE string;
    DEFINE FIELD IF NOT EXISTS labels ON image TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS status ON image TYPE string
        ASSERT $value IN ["pending", "processing", "completed", "failed", "archived"];
    DEFINE FIELD IF NOT EXISTS time_added ON image TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS time_updated ON image TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS image_status ON image FIELDS status;
    DEFINE INDEX IF NOT EXISTS image_labels ON image FIELDS labels;

    -- ==========================================================================
    -- NOTIFICATION TABLE (lock-based delivery queue)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS notification SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS envelope ON notification TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON notification TYPE string DEFAULT "ready"
        ASSERT $value IN ["ready", "locked", "dead"];
    DEFINE FIELD IF NOT EXISTS lock_until ON notification TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS delivery_count ON notification TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS enqueued_at ON notification TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS notification_status ON notification FIELDS status;
`
