package taxonomy

import (
	"bytes"
	"fmt"
	"os"
)

func parseBytes(b []byte) (*Tree, error) {
	return Parse(bytes.NewReader(b))
}

// LoadFile parses a taxonomy from disk, for deployments that override the embedded tree.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
