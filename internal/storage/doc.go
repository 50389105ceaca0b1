// Package storage keeps an append-only audit log of operator actions.
//
// Thresholds and band state are deliberately absent: they live in memory only.
package storage
