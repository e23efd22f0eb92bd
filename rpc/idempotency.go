package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"
)

const (
	idempotencyHeader = "Idempotency-Key"
	anonymousScope    = "anonymous"
)

// IdempotencyRecord is a stored JSON-RPC response. Keys are scoped to the
// authenticated caller, and the fingerprint binds a key to one method and
// parameter set.
type IdempotencyRecord struct {
	Caller      string `gorm:"primaryKey;size:64"`
	Key         string `gorm:"primaryKey;size:128"`
	Fingerprint string `gorm:"size:64"`
	Method      string `gorm:"size:64"`
	RequestID   string `gorm:"size:64"`
	Path        string
	Status      int
	Response    string
	CreatedAt   time.Time
}

// OpenIdempotencyStore opens the replay store. driver is "sqlite" or
// "postgres".
func OpenIdempotencyStore(driver, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("rpc: idempotency dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("rpc: unsupported idempotency driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("rpc: open idempotency store: %w", err)
	}
	if err := migrateIdempotency(db); err != nil {
		return nil, err
	}
	return db, nil
}

func migrateIdempotency(db *gorm.DB) error {
	if err := db.AutoMigrate(&IdempotencyRecord{}); err != nil {
		return fmt.Errorf("rpc: migrate idempotency store: %w", err)
	}
	return nil
}

// requestFingerprint hashes the method and parameters so a key cannot be
// reused for a different call. The JSON-RPC id is left out.
func requestFingerprint(req *RPCRequest) (string, error) {
	params, err := json.Marshal(req.Params)
	if err != nil {
		return "", err
	}
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(req.Method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(params)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// withIdempotency replays the stored response for a previously seen
// Idempotency-Key instead of executing the request again. Only successful
// responses are stored so failed attempts can be retried. Requests carrying
// an invalid bearer token are never replayed.
func (s *Server) withIdempotency(db *gorm.DB, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		scope := anonymousScope
		if r.Header.Get("Authorization") != "" {
			caller, authErr := s.auth.caller(r)
			if authErr != nil {
				next.ServeHTTP(w, r)
				return
			}
			scope = caller.Hex()
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil || len(body) > maxRequestBytes {
			next.ServeHTTP(w, r)
			return
		}
		req := &RPCRequest{}
		if err := json.Unmarshal(body, req); err != nil || req.Method == "" {
			next.ServeHTTP(w, r)
			return
		}
		fingerprint, err := requestFingerprint(req)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var record IdempotencyRecord
		if err := db.First(&record, "caller = ? AND key = ?", scope, key).Error; err == nil {
			w.Header().Set("Content-Type", "application/json")
			if record.Fingerprint != fingerprint {
				writeError(w, http.StatusConflict, req.ID, codeConflict, "idempotency key reused with a different request", key)
				return
			}
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(record.Status)
			_, _ = io.WriteString(w, record.Response)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status != http.StatusOK || bytes.Contains(recorder.buf.Bytes(), []byte(`"error":`)) {
			return
		}
		if err := db.Create(&IdempotencyRecord{
			Caller:      scope,
			Key:         key,
			Fingerprint: fingerprint,
			Method:      req.Method,
			RequestID:   uuid.NewString(),
			Path:        r.URL.Path,
			Status:      recorder.status,
			Response:    recorder.buf.String(),
			CreatedAt:   time.Now(),
		}).Error; err != nil {
			s.logger.Warn("idempotency record not stored", "idempotency_key", key, "error", err)
		}
	})
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
