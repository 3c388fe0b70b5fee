// SPDX-License-Identifier: Apache-2.0

// Package checksum computes the stable content hashes used to classify
// drift, and the gzip+base64 envelope used to preserve executed SQL.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Checksums is the three independently-addressable content hashes of a
// single version/partition: SQL, schema, and the verbatim declaration text.
// They are never concatenated before hashing, so a schema-only edit leaves
// SQL unchanged and vice versa.
type Checksums struct {
	SQL    string `json:"sql_checksum"`
	Schema string `json:"schema_checksum"`
	YAML   string `json:"yaml_checksum"`
}

// digest returns a stable 16-hex-char content hash: the first 8 bytes of the
// SHA-256 digest, hex-encoded.
func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// Compute hashes each of sql, schema, and yaml independently.
func Compute(sql, schema, yaml string) Checksums {
	return Checksums{
		SQL:    digest(sql),
		Schema: digest(schema),
		YAML:   digest(yaml),
	}
}

// ExecutionArtifact pairs a Checksums with the gzip+base64 executed SQL in
// one value. pkg/executor's writer does not build one; it fills the same
// fields of PartitionWriteStats directly.
type ExecutionArtifact struct {
	Checksums      Checksums
	ExecutedSQLB64 string
}

// NewExecutionArtifact computes checksums over sql/schema/yaml and compresses
// the executed SQL in one step.
func NewExecutionArtifact(executedSQL, schema, yaml string) (ExecutionArtifact, error) {
	b64, err := CompressToBase64(executedSQL)
	if err != nil {
		return ExecutionArtifact{}, err
	}
	return ExecutionArtifact{
		Checksums:      Compute(executedSQL, schema, yaml),
		ExecutedSQLB64: b64,
	}, nil
}

// CompressToBase64 gzips s and base64-encodes the result with the standard
// alphabet and padding, so executed SQL can be round-tripped from storage.
func CompressToBase64(s string) (string, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressFromBase64 reverses CompressToBase64.
func DecompressFromBase64(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
