package httpx

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Content types produced by EncodeBody.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypePlain    = "text/plain"
	ContentTypeBinary   = "application/octet-stream"
)

// EncodeBody serializes a dynamic-producer value into dst and reports the
// content type it chose. dst is a per-worker scratch buffer; the encoded
// bytes alias it and are only valid until the next request on that worker.
//
//   - []byte and string pass through untouched
//   - proto.Message marshals as protobuf wire format
//   - everything else marshals as JSON
func EncodeBody(dst []byte, v any) ([]byte, string, error) {
	switch b := v.(type) {
	case nil:
		return dst, ContentTypePlain, nil
	case []byte:
		return append(dst, b...), ContentTypeBinary, nil
	case string:
		return append(dst, b...), ContentTypePlain, nil
	case proto.Message:
		out, err := proto.MarshalOptions{}.MarshalAppend(dst, b)
		if err != nil {
			return dst, "", fmt.Errorf("httpx: protobuf encode: %w", err)
		}
		return out, ContentTypeProtobuf, nil
	default:
		out, err := appendJSON(dst, v)
		if err != nil {
			return dst, "", fmt.Errorf("httpx: json encode: %w", err)
		}
		return out, ContentTypeJSON, nil
	}
}

// appendJSON marshals v onto dst without the trailing newline json.Encoder
// would add.
func appendJSON(dst []byte, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return dst, err
	}
	return append(dst, data...), nil
}
