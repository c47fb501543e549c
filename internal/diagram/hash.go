package diagram

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint computes a stable SHA-256 hash of the diagram content.
//
// The hash covers id, name, nodes and edges in their given order. It is
// stable across JSON formatting and key ordering of the source document
// because encoding/json sorts map keys when marshalling node data.
func Fingerprint(d *Diagram) (string, error) {
	if d == nil {
		return "", &BadInputError{Msg: "diagram is nil"}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", &BadInputError{Msg: "failed to serialize diagram for hashing", Err: err}
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
