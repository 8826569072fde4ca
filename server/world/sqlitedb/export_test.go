package sqlitedb

// Pragma returns the value of the pragma passed on a connection of db.
func Pragma(db *DB, name string) (string, error) {
	var v string
	err := db.sqlDB.QueryRow("PRAGMA " + name).Scan(&v)
	return v, err
}
