// Package utils provides common conversion helpers for values decoded from JSON
// snapshots, such as reading a record timestamp that may arrive as a number or a
// numeric string.
package utils
