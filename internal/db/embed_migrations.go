package db

import "embed"

// MigrationFS embeds the SQL migrations for admin_users, admin_sessions and
// admin_audit_logs. Applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
