// Package cache keeps a short-lived Redis copy of each vehicle's last
// reported location so the public read paths stay off the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/campus-fleet/internal/models"
)

const DefaultTTL = 5 * time.Minute

type VehicleLocations struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewVehicleLocations returns a cache over rdb. A nil client yields a
// cache that misses everything, which keeps callers free of nil checks.
func NewVehicleLocations(rdb *redis.Client, ttl time.Duration) *VehicleLocations {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &VehicleLocations{rdb: rdb, ttl: ttl}
}

func locationKey(vehicleID uuid.UUID) string {
	return fmt.Sprintf("vehicle:%s:location", vehicleID)
}

func (c *VehicleLocations) Get(ctx context.Context, vehicleID uuid.UUID) (*models.Location, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, locationKey(vehicleID)).Result()
	if err != nil {
		return nil, false
	}
	var loc models.Location
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, false
	}
	return &loc, true
}

// Set is best-effort; a Redis outage never blocks telemetry ingest.
func (c *VehicleLocations) Set(ctx context.Context, vehicleID uuid.UUID, loc models.Location) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, locationKey(vehicleID), b, c.ttl).Err()
}

func (c *VehicleLocations) Invalidate(ctx context.Context, vehicleID uuid.UUID) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, locationKey(vehicleID)).Err()
}
