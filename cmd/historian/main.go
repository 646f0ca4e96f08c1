// cmd/historian/main.go is an asynchronous worker that pops lobby event
// records from the Redis audit queue and persists them to the match_events
// table in PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/lucasreed/incognito/internal/cache"
	"github.com/lucasreed/incognito/internal/store"
)

// HistorianService drains the Redis event queue into Postgres in batches.
type HistorianService struct {
	redisClient *redis.Client
	pool        *pgxpool.Pool
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu sync.Mutex
	batch   []cache.MatchEventRecord

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs the worker from environment variables or
// defaults.
func NewHistorianService(pool *pgxpool.Pool) *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		pool:        pool,
		queueName:   getEnv("EVENT_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.MatchEventRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the queue-reader loop and blocks until the context ends.
func (hs *HistorianService) Run() {
	go hs.readRedisLoop()

	log.Println("incognito-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatch()
	log.Println("incognito-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve event records from the
// queue, flushing the accumulated batch on a timer.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatch()

		default:
			// BLPop with a short timeout so cancellation is noticed.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, hs.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if hs.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record cache.MatchEventRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid event record: %v\n", err)
				continue
			}
			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record and flushes when the threshold is reached.
func (hs *HistorianService) appendToBatch(record cache.MatchEventRecord) {
	hs.batchMu.Lock()
	full := false
	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		full = true
	}
	hs.batchMu.Unlock()

	if full {
		hs.flushBatch()
	}
}

// flushBatch writes the current batch to the database in one transaction.
func (hs *HistorianService) flushBatch() {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	batchCopy := make([]cache.MatchEventRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, hs.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO match_events (match_id, event_type, payload, occurred_at)
				VALUES ($1, $2, $3, to_timestamp($4 / 1000.0))`,
				rec.MatchID, rec.EventType, payload, rec.Timestamp,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatch: %v\n", err)
	} else {
		log.Printf("Flushed %d events to DB.\n", len(batchCopy))
	}
}

func main() {
	pool, err := store.Connect(context.Background())
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	hs := NewHistorianService(pool)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		hs.cancelFn()
	}()

	hs.Run()
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
