// Package kv implements the device key-value store the client keeps its
// session in.
//
// Two tables exist: "kv" for ordinary values and "secure_kv" for values that
// are encrypted at rest (see SecureRepository). Both satisfy Repository.
//
// Contract
//
//   - Get returns (nil, nil) when the key is absent.
//   - Set upserts.
//   - Delete and Clear are no-ops on missing data.
package kv
