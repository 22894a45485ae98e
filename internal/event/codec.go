package event

import (
	"encoding/json"
	"fmt"
)

// MarshalPayload serializes a record payload for storage and publishing.
func MarshalPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

// DecodePayload parses a stored payload back into its concrete type.
// Used on restart when replaying the settlement log past a snapshot.
func DecodePayload(recordType RecordType, data []byte) (interface{}, error) {
	switch recordType {
	case RecordTypeOrderPlaced:
		var p OrderPlaced
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RecordTypeOrderFilled:
		var p OrderFilled
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RecordTypeOrderCancelled:
		var p OrderCancelled
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RecordTypeAssetBorrowed:
		var p AssetBorrowed
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RecordTypeAssetRepaid:
		var p AssetRepaid
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown record type %d", recordType)
	}
}

// ParseRecordType maps the stored string form back to the enum.
func ParseRecordType(s string) (RecordType, error) {
	switch s {
	case "OrderPlaced":
		return RecordTypeOrderPlaced, nil
	case "OrderFilled":
		return RecordTypeOrderFilled, nil
	case "OrderCancelled":
		return RecordTypeOrderCancelled, nil
	case "AssetBorrowed":
		return RecordTypeAssetBorrowed, nil
	case "AssetRepaid":
		return RecordTypeAssetRepaid, nil
	default:
		return RecordTypeUnknown, fmt.Errorf("unknown record type %q", s)
	}
}
