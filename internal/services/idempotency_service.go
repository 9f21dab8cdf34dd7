// Package services – IdempotencyService
//
// This file implements the idempotent execution coordinator. It guarantees
// that a client retrying a mutating request with the same Idempotency-Key
// receives a byte-identical response exactly as if the operation had run
// once, even under concurrent retries, process restarts, or replay-cache
// loss.
//
// Two stores cooperate:
//   - the replay cache (internal/cache), a fast, possibly-volatile copy of
//     completed responses; always safe to lose;
//   - the durable idempotency record (internal/repo), the transactional
//     source of truth whose composite unique index arbitrates concurrent
//     first-time requests.
//
// No application-level locks are held at any point; all concurrency control
// derives from the storage layer's uniqueness constraint.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/cache"
	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/repo"
)

// Request carries the parts of an inbound mutating request the coordinator
// needs: the method, the raw body text used for fingerprinting, and the
// client-supplied idempotency key (empty when the header was absent).
type Request struct {
	Method         string
	Body           string
	IdempotencyKey string
}

// Response is the transport-agnostic result of a unit of work. Replayed is
// true only when the response was served from a prior execution; status
// code and body are identical either way.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Replayed    bool
}

// UnitOfWork produces the operation's response. It may perform durable
// writes of its own (payment intent rows, journal entries, webhook
// deliveries); the coordinator executes it at most once per completed key.
type UnitOfWork func(ctx context.Context) (*Response, error)

// IdempotencyService coordinates idempotent execution of mutating API
// operations. Collaborators are injected; the service holds no global
// state and is safe for concurrent use.
type IdempotencyService struct {
	// DB is the GORM handle for the durable idempotency records.
	DB *gorm.DB
	// Cache is the replay cache; any ReplayCache implementation, including
	// the always-miss Noop, keeps the coordinator correct.
	Cache cache.ReplayCache
	// TTL bounds the replay cache entries and sets the advisory expiry on
	// durable records.
	TTL time.Duration
}

// Execute runs fn under idempotency bookkeeping for (merchantID, route).
//
// Only POST is treated as requiring a key; other methods execute fn
// directly with no bookkeeping. For POST:
//
//  1. A missing key fails with ErrMissingIdempotencyKey before any side
//     effect.
//  2. The request fingerprint (SHA-256 of method+body) is computed.
//  3. A cache hit with a matching fingerprint replays immediately; a hit
//     with a mismatched fingerprint is dispositive and fails with
//     ErrIdempotencyKeyConflict without consulting the durable store (the
//     cache is itself derived from it).
//  4. Otherwise the durable record decides: mismatch conflicts; a COMPLETED
//     record replays (and repairs the cache); a PENDING record means a
//     concurrent execution is in flight or a prior one crashed — the unit
//     of work is re-executed rather than blocked (see package notes).
//  5. A first-seen key inserts a PENDING record; losing that insert race
//     surfaces as a duplicate, which is resolved with a single re-lookup.
//  6. After fn succeeds its response is persisted (PENDING -> COMPLETED,
//     irreversible) and written to the cache best-effort.
//
// Any storage failure in the execute/commit phase propagates and leaves the
// record PENDING, so a retry remains safe.
func (s *IdempotencyService) Execute(ctx context.Context, req Request, merchantID, route string, fn UnitOfWork) (*Response, error) {
	if strings.ToUpper(req.Method) != http.MethodPost {
		return fn(ctx)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, ErrMissingIdempotencyKey
	}

	hash := RequestFingerprint(req.Method, req.Body)
	cacheKey := cache.Key(merchantID, route, key)

	if entry, _ := s.Cache.Get(ctx, cacheKey); entry != nil {
		if entry.RequestHash != hash {
			idempotencyConflicts.WithLabelValues(route).Inc()
			return nil, ErrIdempotencyKeyConflict
		}
		idempotencyReplays.WithLabelValues(route, "cache").Inc()
		return replayFromCache(entry), nil
	}

	rec, err := repo.GetIdempotencyRecord(ctx, s.DB, merchantID, route, key)
	switch {
	case err == nil:
		if resp, rerr := s.resolveExisting(ctx, rec, hash, route, cacheKey); resp != nil || rerr != nil {
			return resp, rerr
		}
		// PENDING with matching fingerprint: fall through and re-execute.
	case errors.Is(err, repo.ErrNotFound):
		if _, cerr := repo.CreatePendingIdempotencyRecord(ctx, s.DB, merchantID, route, key, hash, s.TTL); cerr != nil {
			if !errors.Is(cerr, repo.ErrDuplicate) {
				return nil, cerr
			}
			// A concurrent request won the insert race; the record now
			// exists. Re-resolve it exactly once.
			rec, err = repo.GetIdempotencyRecord(ctx, s.DB, merchantID, route, key)
			if err != nil {
				return nil, err
			}
			if resp, rerr := s.resolveExisting(ctx, rec, hash, route, cacheKey); resp != nil || rerr != nil {
				return resp, rerr
			}
		}
	default:
		return nil, err
	}

	resp, err := fn(ctx)
	if err != nil {
		// The record stays PENDING; a client retry re-runs the work.
		return nil, err
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	if _, err := repo.CompleteIdempotencyRecord(ctx, s.DB, merchantID, route, key,
		resp.StatusCode, string(resp.Body), contentType); err != nil {
		return nil, err
	}

	// Cache write-back is best-effort; concurrent writers follow
	// last-write-wins with no correctness impact.
	_ = s.Cache.Set(ctx, cacheKey, cache.Entry{
		MerchantID:          merchantID,
		Route:               route,
		Key:                 key,
		RequestHash:         hash,
		ResponseStatusCode:  resp.StatusCode,
		ResponseBody:        string(resp.Body),
		ResponseContentType: contentType,
	}, s.TTL)

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        resp.Body,
		ContentType: contentType,
		Replayed:    false,
	}, nil
}

// resolveExisting inspects a found durable record. It returns a non-nil
// response or error when the record settles the request (conflict or
// replay); (nil, nil) means the record is PENDING with a matching
// fingerprint and the caller should re-execute the unit of work.
func (s *IdempotencyService) resolveExisting(ctx context.Context, rec *domain.IdempotencyRecord, hash, route, cacheKey string) (*Response, error) {
	if rec.RequestHash != hash {
		idempotencyConflicts.WithLabelValues(route).Inc()
		return nil, ErrIdempotencyKeyConflict
	}
	if rec.Completed() {
		entry := cache.Entry{
			MerchantID:          rec.MerchantID,
			Route:               rec.Route,
			Key:                 rec.Key,
			RequestHash:         rec.RequestHash,
			ResponseStatusCode:  *rec.ResponseStatusCode,
			ResponseBody:        *rec.ResponseBody,
			ResponseContentType: contentTypeOrDefault(rec.ResponseContentType),
		}
		// Repair-on-read: repopulate the cache from durable truth.
		_ = s.Cache.Set(ctx, cacheKey, entry, s.TTL)
		idempotencyReplays.WithLabelValues(route, "store").Inc()
		return replayFromCache(&entry), nil
	}
	return nil, nil
}

func replayFromCache(e *cache.Entry) *Response {
	return &Response{
		StatusCode:  e.ResponseStatusCode,
		Body:        []byte(e.ResponseBody),
		ContentType: contentTypeOrDefault(&e.ResponseContentType),
		Replayed:    true,
	}
}

func contentTypeOrDefault(ct *string) string {
	if ct == nil || *ct == "" {
		return "application/json"
	}
	return *ct
}
