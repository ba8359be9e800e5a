// Package codec converts binary audio payloads to and from the text form
// used inside the provider's JSON messages.
package codec

import "encoding/base64"

// Encode returns the padded standard base64 form of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode is the inverse of Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
