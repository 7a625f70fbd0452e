package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/shadowflicker/internal/metrics"
	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/solar"
)

// SolarCache is a calendar.SolarSource that keeps daylight series in the
// solar_cache table, computing them with the fallback source on a miss.
type SolarCache struct {
	db       *sql.DB
	fallback calendar.SolarSource
	logger   *zap.SugaredLogger
}

// SolarCache returns a cache over this store. A nil fallback computes series
// from scratch.
func (s *Store) SolarCache(fallback calendar.SolarSource) *SolarCache {
	if fallback == nil {
		fallback = calendar.ComputedSolar{}
	}
	return &SolarCache{db: s.db, fallback: fallback, logger: s.logger}
}

// cacheKey identifies a series by every parameter that shapes it. Floats are
// written in their shortest exact form so nearby sites never share an entry.
func cacheKey(p calendar.ProjectParameters) string {
	return strings.Join([]string{
		formatFloat(p.Latitude),
		formatFloat(p.Longitude),
		strconv.Itoa(p.Year),
		p.Timezone,
		strconv.Itoa(p.TimestepMinutes),
		formatFloat(p.MinSolarElevationDeg),
	}, "|")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// DaylightSeries implements calendar.SolarSource.
func (c *SolarCache) DaylightSeries(p calendar.ProjectParameters) (*solar.Series, error) {
	p = p.WithDefaults()
	key := cacheKey(p)

	series, err := c.lookup(key, p.Timezone)
	switch {
	case err == nil:
		metrics.IncSolarCache("hit")
		return series, nil
	case !errors.Is(err, sql.ErrNoRows):
		// A broken entry is recomputed and overwritten.
		c.logger.Warnw("solar cache read failed", "key", key, "error", err)
	}
	metrics.IncSolarCache("miss")

	series, err = c.fallback.DaylightSeries(p)
	if err != nil {
		return nil, err
	}

	blob, err := msgpack.Marshal(series.Samples)
	if err != nil {
		return nil, fmt.Errorf("failed to encode solar series: %w", err)
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO solar_cache (cache_key, created_at, samples, series) VALUES (?, ?, ?, ?)",
		key, time.Now().UTC().Format(time.RFC3339), len(series.Samples), blob)
	if err != nil {
		// The series is still good; only caching failed.
		c.logger.Warnw("solar cache write failed", "key", key, "error", err)
	}
	return series, nil
}

func (c *SolarCache) lookup(key, timezone string) (*solar.Series, error) {
	var blob []byte
	if err := c.db.QueryRow("SELECT series FROM solar_cache WHERE cache_key = ?", key).Scan(&blob); err != nil {
		return nil, err
	}

	var samples []solar.Sample
	if err := msgpack.Unmarshal(blob, &samples); err != nil {
		return nil, fmt.Errorf("failed to decode solar series: %w", err)
	}

	// msgpack keeps the instant but not the zone.
	loc, warning := solar.ResolveLocation(timezone)
	for i := range samples {
		samples[i].Time = samples[i].Time.In(loc)
	}
	return &solar.Series{Location: loc, Samples: samples, Warning: warning}, nil
}

// Purge empties the cache and returns the number of entries removed.
func (c *SolarCache) Purge() (int64, error) {
	res, err := c.db.Exec("DELETE FROM solar_cache")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
