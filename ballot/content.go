package ballot

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"proxyvote/models"
)

// CanonicalJSON serializes ballot content with two-space indentation and no
// trailing newline, byte for byte as the JavaScript committers of existing
// ballot hashes did. Raw JSON ([]byte or json.RawMessage) keeps its key order;
// other values go through encoding/json first, so struct fields keep their
// declaration order and map keys come out sorted.
func CanonicalJSON(content interface{}) ([]byte, error) {
	var data []byte
	switch c := content.(type) {
	case json.RawMessage:
		data = c
	case []byte:
		data = c
	default:
		var err error
		if data, err = json.Marshal(content); err != nil {
			return nil, models.NewValidationError(models.CheckContentSerialized, err.Error())
		}
	}

	v, err := parseOrdered(data)
	if err != nil {
		return nil, models.NewValidationError(models.CheckContentSerialized, err.Error())
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v, ""); err != nil {
		return nil, models.NewValidationError(models.CheckContentSerialized, err.Error())
	}
	return buf.Bytes(), nil
}

// HashBallotSpec returns the commitment string for content: 0x followed by
// the lowercase hex SHA-256 of its canonical JSON.
func HashBallotSpec(content interface{}) (string, error) {
	data, err := CanonicalJSON(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hexutil.Encode(sum[:]), nil
}

// CheckBallotHashBSpec reports whether content hashes to commitment. The
// comparison is case-sensitive. A mismatch is a false result, not an error.
func CheckBallotHashBSpec(content interface{}, commitment string) (bool, error) {
	h, err := HashBallotSpec(content)
	if err != nil {
		return false, err
	}
	return h == commitment, nil
}

// CheckBallotHashGBallot checks a composite ballot's data against its own
// ballotHash field.
func CheckBallotHashGBallot(b *models.GlobalBallot) (bool, error) {
	if b == nil {
		return false, models.NewValidationError(models.CheckContentSerialized, nil)
	}
	return CheckBallotHashBSpec(b.Data, b.BallotHash)
}
