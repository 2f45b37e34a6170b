package identity

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileDirectory is a development stand-in for the external account service: a
// JSON file mapping participant IDs to contact addresses, e.g.
//
//	{"100001": "reader@example.com"}
type FileDirectory struct {
	addresses map[string]string
}

// LoadFileDirectory reads the directory file from path.
func LoadFileDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	addresses := map[string]string{}
	if err := json.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", path, err)
	}
	return &FileDirectory{addresses: addresses}, nil
}

// Exists implements DirectoryFunc.
func (d *FileDirectory) Exists(participantID string) (bool, error) {
	_, ok := d.addresses[participantID]
	return ok, nil
}

// Address returns the contact address on file for a participant.
func (d *FileDirectory) Address(participantID string) (string, error) {
	addr, ok := d.addresses[participantID]
	if !ok {
		return "", fmt.Errorf("no address for participant %s", participantID)
	}
	return addr, nil
}
