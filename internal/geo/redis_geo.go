package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/rider-core/internal/models"
)

const defaultRadiusM = 5000

// RedisGeo is a driver pool backed by Redis GEO commands plus a metadata
// hash per driver. cmd/consumer writes it, the matcher reads it.
type RedisGeo struct {
	client  redis.UniversalClient
	key     string
	radiusM float64
}

func NewRedisGeo(client redis.UniversalClient, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key, radiusM: defaultRadiusM}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", d.ID, err)
	}
	updated := d.Updated
	if updated.IsZero() {
		updated = time.Now()
	}
	return r.client.HSet(ctx, MetaKey(d.ID), MetaFields(d, updated)).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	res, err := r.client.GeoRadius(ctx, r.key, at.Lon, at.Lat, &redis.GeoRadiusQuery{
		Radius: r.radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name, Loc: models.Coord{Lat: g.Latitude, Lon: g.Longitude}}
		m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result()
		if err != nil {
			return nil, fmt.Errorf("driver meta %s: %w", g.Name, err)
		}
		applyMeta(&d, m)
		if !d.Online {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func MetaKey(id string) string { return "driver:meta:" + id }

// MetaFields is the hash layout shared by the consumer and the pool reader.
func MetaFields(d models.Driver, updated time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":           d.Name,
		"rating":         strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"online":         strconv.FormatBool(d.Online),
		"vehicle_model":  d.VehicleModel,
		"vehicle_number": d.VehicleNumber,
		"photo_ref":      d.PhotoRef,
		"updated":        updated.UTC().Format(time.RFC3339),
	}
}

func applyMeta(d *models.Driver, m map[string]string) {
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = f
		}
	}
	d.Online = m["online"] == "true"
	d.Name = m["name"]
	d.VehicleModel = m["vehicle_model"]
	d.VehicleNumber = m["vehicle_number"]
	d.PhotoRef = m["photo_ref"]
	if v, ok := m["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			d.Updated = ts
		}
	}
}
