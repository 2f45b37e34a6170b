package database

// RecordContact adds other to owner's contact set; a no-op when already
// present. The relation is directional: owner has messaged other.
func RecordContact(owner, other string) error {
	_, err := DB.Exec(
		`INSERT OR IGNORE INTO contacts (owner, contact) VALUES (?, ?)`,
		owner, other,
	)
	return err
}

// GetContacts returns owner's contacts in the order they were first recorded.
func GetContacts(owner string) ([]string, error) {
	rows, err := DB.Query(
		`SELECT contact FROM contacts WHERE owner = ? ORDER BY id ASC`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// HasContact reports whether other is in owner's contact set.
func HasContact(owner, other string) (bool, error) {
	var n int
	err := DB.QueryRow(
		`SELECT COUNT(*) FROM contacts WHERE owner = ? AND contact = ?`,
		owner, other,
	).Scan(&n)
	return n > 0, err
}
