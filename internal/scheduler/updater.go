package scheduler

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/cache"
	"github.com/tripkeeper/tripkeeper/internal/flight"
	"github.com/tripkeeper/tripkeeper/internal/provider"
	"github.com/tripkeeper/tripkeeper/internal/quota"
)

// Updater refreshes one flight at a time. Side effects are confined to the
// status cache and the quota tracker.
type Updater struct {
	client provider.Client
	quota  *quota.Tracker
	cache  *cache.Cache
}

func NewUpdater(client provider.Client, tracker *quota.Tracker, statusCache *cache.Cache) *Updater {
	return &Updater{client: client, quota: tracker, cache: statusCache}
}

// Update attempts a quota-gated upstream fetch for one flight. With the
// budget spent it returns the cached entry without touching the provider.
// A failed attempt still consumes quota; only the skip path avoids it.
func (u *Updater) Update(ctx context.Context, f flight.TrackedFlight) *cache.Entry {
	if u == nil {
		return nil
	}
	if u.quota.IsLimitReached(ctx) {
		log.Warnf("updater: monthly quota exhausted, serving cached status for %s", f.Key())
		entry, _ := u.cache.Get(ctx, f.FlightIata, f.Date)
		return entry
	}

	status, err := u.client.FetchStatus(ctx, f.FlightIata, f.Date)
	if err != nil {
		if recErr := u.quota.RecordCall(ctx); recErr != nil {
			log.WithError(recErr).Error("updater: persisting quota counter failed")
		}
		switch provider.ErrorCategory(err) {
		case provider.CategoryNotFound:
			log.Infof("updater: no fresher data for %s: %v", f.Key(), err)
		case provider.CategoryUnauthorized:
			log.Warnf("updater: provider rejected credentials for %s: %v", f.Key(), err)
		case provider.CategoryRateLimited:
			log.Warnf("updater: provider rate limit hit for %s: %v", f.Key(), err)
		default:
			log.Warnf("updater: fetch failed for %s: %v", f.Key(), err)
		}
		entry, _ := u.cache.Get(ctx, f.FlightIata, f.Date)
		return entry
	}

	entry, putErr := u.cache.Put(ctx, f.FlightIata, f.Date, status)
	if putErr != nil {
		log.WithError(putErr).Error("updater: persisting status cache failed, fresh status kept in memory only")
	}
	if recErr := u.quota.RecordCall(ctx); recErr != nil {
		log.WithError(recErr).Error("updater: persisting quota counter failed")
	}
	log.Debugf("updater: refreshed %s (gate=%s delay=%dm)", f.Key(), status.DepartureGate, status.DepartureDelay)
	return entry
}
