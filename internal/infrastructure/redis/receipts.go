package redisinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const usedReceiptKeyPrefix = "idv:receipt:"

// ReceiptLock marks face verification receipts as used so one receipt
// cannot back two registrations.
type ReceiptLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReceiptLock keeps claims for ttl. Receipts older than that are long
// expired for the capture client anyway.
func NewReceiptLock(client *redis.Client, ttl time.Duration) *ReceiptLock {
	return &ReceiptLock{client: client, ttl: ttl}
}

// Claim records fingerprint as used. It reports false if it was already claimed.
func (l *ReceiptLock) Claim(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := l.client.SetNX(ctx, usedReceiptKeyPrefix+fingerprint, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim receipt: %w", err)
	}
	return ok, nil
}

// Release frees a claim so the patient can retry with the same receipt.
func (l *ReceiptLock) Release(ctx context.Context, fingerprint string) error {
	if err := l.client.Del(ctx, usedReceiptKeyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("release receipt: %w", err)
	}
	return nil
}
