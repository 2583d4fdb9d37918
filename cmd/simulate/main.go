package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	HotSlots        int
	ClaimantLimit   int
	TransitionRatio float64
	ReadRatio       float64
	PostgresDSN     string
}

// DataPool holds the ids workers draw from. Booked slots are tracked so that
// later status transitions have something to act on.
type DataPool struct {
	Claimants []uuid.UUID
	Slots     []uuid.UUID
	mu        sync.RWMutex
	booked    []uuid.UUID
}

func (dp *DataPool) AddBooked(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, id)
}

func (dp *DataPool) RandomBooked(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.booked) == 0 {
		return uuid.Nil, false
	}
	return dp.booked[rng.IntN(len(dp.booked))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

var methods = []string{"CASH", "CARD", "WALLET"}

var transitions = []string{"CONFIRMED", "CANCELLED", "COMPLETED"}

func main() {
	baseCfg, err := config.Load()
	logger := logging.New(baseCfg.Env, "simulate")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("hot_slots", cfg.HotSlots).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4, 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("claimants", len(dataPool.Claimants)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCheck()
	if err := verifyLedger(checkCtx, pgPool, dataPool.Slots); err != nil {
		logger.Error().Err(err).Msg("ledger check failed")
		os.Exit(1)
	}
	logger.Info().Msg("ledger check passed: every contended slot has at most one payment, none orphaned")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 20),
		HotSlots:        getInt("SIM_HOT_SLOTS", 25),
		ClaimantLimit:   getInt("SIM_CLAIMANT_LIMIT", 2000),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.2),
		PostgresDSN:     base.PostgresDSN,
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	if cfg.TransitionRatio+cfg.ReadRatio >= 1 {
		return fmt.Errorf("SIM_TRANSITION_RATIO + SIM_READ_RATIO must leave room for bookings")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	claimants, err := queryIDs(ctx, pool, `SELECT id FROM claimants LIMIT $1`, cfg.ClaimantLimit)
	if err != nil {
		return nil, fmt.Errorf("load claimants: %w", err)
	}
	dataPool.Claimants = claimants

	// A handful of open slots, so workers collide on them.
	slots, err := queryIDs(ctx, pool, `
		SELECT id FROM slots
		WHERE status = 'AVAILABLE' AND reserved_by IS NULL AND start_time > now()
		ORDER BY start_time
		LIMIT $1
	`, cfg.HotSlots)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	dataPool.Slots = slots

	if len(dataPool.Claimants) == 0 {
		return nil, fmt.Errorf("no claimants loaded, run seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded, run seed first")
	}

	return dataPool, nil
}

func queryIDs(ctx context.Context, pool *pgxpool.Pool, sql string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// verifyLedger checks the contended slots after the run: no slot carries more
// than one payment, and no payment points at a slot that was never claimed.
func verifyLedger(ctx context.Context, pool *pgxpool.Pool, slotIDs []uuid.UUID) error {
	var duplicated int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT slot_id FROM payments
			WHERE slot_id = ANY($1)
			GROUP BY slot_id
			HAVING count(*) > 1
		) d
	`, slotIDs).Scan(&duplicated)
	if err != nil {
		return fmt.Errorf("count duplicate payments: %w", err)
	}
	if duplicated > 0 {
		return fmt.Errorf("%d slots have more than one payment", duplicated)
	}

	var orphaned int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM payments p
		JOIN slots s ON s.id = p.slot_id
		WHERE p.slot_id = ANY($1) AND s.status = 'AVAILABLE'
	`, slotIDs).Scan(&orphaned)
	if err != nil {
		return fmt.Errorf("count orphaned payments: %w", err)
	}
	if orphaned > 0 {
		return fmt.Errorf("%d payments belong to slots that are still AVAILABLE", orphaned)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.ReadRatio:
			s.doRead(ctx, rng)
		case r < s.config.ReadRatio+s.config.TransitionRatio:
			s.doTransition(ctx, rng)
		default:
			s.doReserveAndBook(ctx, rng)
		}
	}
}

func (s *Simulator) doReserveAndBook(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.IntN(len(s.pool.Slots))]
	claimantID := s.pool.Claimants[rng.IntN(len(s.pool.Claimants))]
	base := fmt.Sprintf("%s/slots/%s", s.config.APIBaseURL, slotID)

	code, latency, err := s.send(ctx, http.MethodPost, base+"/reservation", map[string]string{"claimant_id": claimantID.String()})
	s.metrics.Reserve.Record(latency, err == nil && code == http.StatusCreated, code == http.StatusConflict)
	if err != nil || code != http.StatusCreated {
		return
	}

	// Think time between holding the slot and paying for it.
	time.Sleep(time.Duration(rng.IntN(50)) * time.Millisecond)

	method := methods[rng.IntN(len(methods))]
	body := map[string]any{
		"claimant_id":    claimantID.String(),
		"payment_method": method,
		"amount_cents":   int64(2500 + rng.IntN(10000)),
	}
	if method == "CARD" {
		body["card_details"] = "4242 4242 4242 " + strconv.Itoa(1000+rng.IntN(9000))
	}

	code, latency, err = s.send(ctx, http.MethodPost, base+"/booking", body)
	booked := err == nil && code == http.StatusCreated
	s.metrics.Book.Record(latency, booked, code == http.StatusConflict || code == http.StatusGone)
	if booked {
		s.pool.AddBooked(slotID)
	}
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	slotID, ok := s.pool.RandomBooked(rng)
	if !ok {
		return
	}

	body := map[string]string{
		"status":     transitions[rng.IntN(len(transitions))],
		"actor_type": "SYSTEM",
		"note":       "simulated",
	}
	code, latency, err := s.send(ctx, http.MethodPost, fmt.Sprintf("%s/slots/%s/status", s.config.APIBaseURL, slotID), body)
	s.metrics.Transition.Record(latency, err == nil && code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.IntN(len(s.pool.Slots))]
	claimantID := s.pool.Claimants[rng.IntN(len(s.pool.Claimants))]

	code, latency, err := s.send(ctx, http.MethodGet,
		fmt.Sprintf("%s/slots/%s/availability?claimant_id=%s", s.config.APIBaseURL, slotID, claimantID), nil)
	s.metrics.Read.Record(latency, err == nil && code == http.StatusOK, false)
}

func (s *Simulator) send(ctx context.Context, method, url string, body any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Status transition", &s.metrics.Transition)
	printOperationReport("Availability read", &s.metrics.Read)
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
