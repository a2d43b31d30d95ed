package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// The version suffix enables future algorithm migration.
const (
	DomainDocument = "arbor/document/v1"
	DomainQuery    = "arbor/query/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentFingerprint computes the content fingerprint of an index document.
// Index backends compare fingerprints to skip rewriting unchanged documents
// during a reindex. Null-valued properties are dropped before hashing since
// an absent property and a null property index identically.
func DocumentFingerprint(doc Object) (string, error) {
	canonical, err := MarshalCanonical(dropNulls(doc))
	if err != nil {
		return "", fmt.Errorf("DocumentFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// QueryFingerprint computes a stable identifier for a query text plus its
// variable bindings. Used to label query spans and CLI output.
func QueryFingerprint(text string, variables Object) (string, error) {
	obj := Object{
		"query":     String(text),
		"variables": dropNulls(variables),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("QueryFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

func dropNulls(obj Object) Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil, Null:
			continue
		case Object:
			out[k] = dropNulls(val)
		default:
			out[k] = v
		}
	}
	return out
}
