// Package mysql opens the MySQL connection pool used by the job store and
// applies the embedded schema migrations from deploy/migrations.
package mysql
